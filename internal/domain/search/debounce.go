package search

import (
	"sync"
	"time"
)

const DefaultDebounce = 500 * time.Millisecond

type Timer interface {
	Stop() bool
}

// Clock нужен, чтобы тесты крутили время вручную.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

func RealClock() Clock { return realClock{} }

// Debouncer сырой запрос обновляется сразу, эффективный — после паузы без ввода.
// Каждый ввод отменяет и перезапускает таймер; очистка до пустой строки мгновенна.
type Debouncer struct {
	mu        sync.Mutex
	clock     Clock
	delay     time.Duration
	raw       string
	effective string
	seq       uint64
	timer     Timer
	onSettle  func(query string)
}

func NewDebouncer(delay time.Duration, clock Clock, onSettle func(query string)) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	if clock == nil {
		clock = RealClock()
	}
	return &Debouncer{clock: clock, delay: delay, onSettle: onSettle}
}

func (d *Debouncer) Input(query string) {
	d.mu.Lock()
	d.raw = query
	d.seq++
	seq := d.seq
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if query == "" {
		changed := d.effective != ""
		d.effective = ""
		d.mu.Unlock()
		if changed && d.onSettle != nil {
			d.onSettle("")
		}
		return
	}
	d.timer = d.clock.AfterFunc(d.delay, func() { d.fire(seq) })
	d.mu.Unlock()
}

// fire срабатывание таймера; устаревшие (перебитые новым вводом) отбрасываются.
func (d *Debouncer) fire(seq uint64) {
	d.mu.Lock()
	if seq != d.seq {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.effective = d.raw
	q := d.effective
	d.mu.Unlock()
	if d.onSettle != nil {
		d.onSettle(q)
	}
}

func (d *Debouncer) Raw() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.raw
}

func (d *Debouncer) Effective() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.effective
}

// Pending ввод ещё не устоялся: показываем индикатор «ищу…».
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.raw != d.effective
}

func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
