package dialog

type State string

const (
	StateIdle State = "idle"

	// Каталог: ввод текста = поиск
	StateBrowse State = "browse"
	// Экран исключений поиска (верхние группы)
	StateExclusions State = "exclusions"

	// Точки заказа
	StateReorderList      State = "reorder_list"
	StateReorderPick      State = "reorder_pick" // выбор позиций (текст = поиск по каталогу)
	StateReorderWarehouse State = "reorder_wh"   // выбор складов
	StateReorderQty       State = "reorder_qty"  // ввод порога
	StateReorderName      State = "reorder_name" // ввод названия группы

	StateExport State = "export"
)

// Editing состояние относится к форме точки заказа.
func (s State) Editing() bool {
	switch s {
	case StateReorderPick, StateReorderWarehouse, StateReorderQty, StateReorderName:
		return true
	}
	return false
}

type Payload map[string]any

type Item struct {
	ChatID  int64
	State   State
	Payload Payload
}
