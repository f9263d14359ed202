package catalog

import (
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Collator сравнение и свёртка регистра по правилам русского языка.
// collate.Collator и cases.Caser не потокобезопасны, поэтому под мьютексом.
type Collator struct {
	mu   sync.Mutex
	coll *collate.Collator
	fold cases.Caser
}

func NewCollator() *Collator {
	return &Collator{
		coll: collate.New(language.Russian),
		fold: cases.Fold(),
	}
}

func (c *Collator) Compare(a, b string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.coll.CompareString(a, b)
}

func (c *Collator) Less(a, b string) bool { return c.Compare(a, b) < 0 }

func (c *Collator) Fold(s string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fold.String(s)
}

// Contains регистронезависимое вхождение подстроки.
func (c *Collator) Contains(s, sub string) bool {
	return strings.Contains(c.Fold(s), c.Fold(sub))
}
