package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"stockdash/server/internal/models"
)

// DefaultSupplierSearchDebounce задержка поиска после ввода
const DefaultSupplierSearchDebounce = 300 * time.Millisecond

// ResolverKey клавиша навигации по списку кандидатов
type ResolverKey string

const (
	KeyArrowDown ResolverKey = "ArrowDown"
	KeyArrowUp   ResolverKey = "ArrowUp"
	KeyEnter     ResolverKey = "Enter"
	KeyEscape    ResolverKey = "Escape"
)

// ResolverState снимок состояния выбора поставщика для одного листа
type ResolverState struct {
	ItemID     string            `json:"item_id"`
	Query      string            `json:"query"`
	Candidates []models.Supplier `json:"candidates"`
	Highlight  int               `json:"highlight"`
	Open       bool              `json:"open"`
	Loading    bool              `json:"loading"`
	Selected   *models.Supplier  `json:"selected"`
}

// ResolverOptions зависимости и колбэки резолвера
type ResolverOptions struct {
	Debounce time.Duration
	Notifier Notifier
	// OnSelect получает выбранного поставщика или nil при сбросе.
	// Применять выбор к диалогу должен владелец резолвера.
	OnSelect func(itemID string, supplier *models.Supplier)
	// OnChange вызывается после каждого изменения видимого состояния
	OnChange func(state ResolverState)
	Initial  *models.Supplier
}

// SupplierResolver комбобокс выбора поставщика без привязки к транспорту.
// Поиск откладывается на Debounce; каждому запуску присваивается поколение,
// устаревшие ответы отбрасываются, а незавершенный запрос отменяется.
type SupplierResolver struct {
	itemID   string
	searcher SupplierSearcher
	notifier Notifier
	debounce time.Duration
	onSelect func(itemID string, supplier *models.Supplier)
	onChange func(state ResolverState)

	mu         sync.Mutex
	query      string
	candidates []models.Supplier
	highlight  int
	open       bool
	loading    bool
	selected   *models.Supplier
	generation uint64
	timer      *time.Timer
	cancel     context.CancelFunc
	closed     bool
}

// NewSupplierResolver создает резолвер для листа itemID
func NewSupplierResolver(itemID string, searcher SupplierSearcher, opts ResolverOptions) *SupplierResolver {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultSupplierSearchDebounce
	}
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{}
	}
	r := &SupplierResolver{
		itemID:    itemID,
		searcher:  searcher,
		notifier:  opts.Notifier,
		debounce:  opts.Debounce,
		onSelect:  opts.OnSelect,
		onChange:  opts.OnChange,
		highlight: -1,
	}
	if opts.Initial != nil {
		chosen := *opts.Initial
		r.selected = &chosen
		r.query = chosen.Name
	}
	return r
}

// ItemID лист, для которого выбирается поставщик
func (r *SupplierResolver) ItemID() string {
	return r.itemID
}

// Snapshot возвращает копию текущего состояния
func (r *SupplierResolver) Snapshot() ResolverState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *SupplierResolver) snapshotLocked() ResolverState {
	state := ResolverState{
		ItemID:     r.itemID,
		Query:      r.query,
		Candidates: append([]models.Supplier{}, r.candidates...),
		Highlight:  r.highlight,
		Open:       r.open,
		Loading:    r.loading,
	}
	if r.selected != nil {
		chosen := *r.selected
		state.Selected = &chosen
	}
	return state
}

// Open раскрывает список и сразу ищет по текущему запросу
func (r *SupplierResolver) Open() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.open = true
	r.scheduleLocked(0)
	state := r.snapshotLocked()
	r.mu.Unlock()

	r.changed(state)
}

// Type обновляет строку поиска. Пустая строка сбрасывает выбор.
func (r *SupplierResolver) Type(query string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.query = query
	r.open = true
	r.highlight = -1
	if query == "" {
		r.selected = nil
	}
	r.scheduleLocked(r.debounce)
	state := r.snapshotLocked()
	r.mu.Unlock()

	if query == "" {
		r.forward(nil)
	}
	r.changed(state)
}

// Key обрабатывает клавишу навигации. Возвращает false для неизвестной клавиши.
func (r *SupplierResolver) Key(key ResolverKey) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}

	if !r.open {
		if key != KeyArrowDown && key != KeyEnter {
			r.mu.Unlock()
			return key == KeyArrowUp || key == KeyEscape
		}
		r.open = true
		r.scheduleLocked(0)
		state := r.snapshotLocked()
		r.mu.Unlock()
		r.changed(state)
		return true
	}

	switch key {
	case KeyArrowDown:
		if r.highlight < len(r.candidates)-1 {
			r.highlight++
		}
	case KeyArrowUp:
		if r.highlight > 0 {
			r.highlight--
		} else {
			r.highlight = -1
		}
	case KeyEnter:
		if r.highlight >= 0 && r.highlight < len(r.candidates) {
			supplier := r.candidates[r.highlight]
			r.mu.Unlock()
			r.choose(supplier)
			return true
		}
	case KeyEscape:
		r.open = false
		r.highlight = -1
	default:
		r.mu.Unlock()
		return false
	}
	state := r.snapshotLocked()
	r.mu.Unlock()

	r.changed(state)
	return true
}

// Hover подсвечивает кандидата под курсором
func (r *SupplierResolver) Hover(index int) {
	r.mu.Lock()
	if r.closed || index < 0 || index >= len(r.candidates) {
		r.mu.Unlock()
		return
	}
	r.highlight = index
	state := r.snapshotLocked()
	r.mu.Unlock()

	r.changed(state)
}

// Choose выбирает кандидата по индексу (клик мышью)
func (r *SupplierResolver) Choose(index int) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errors.New("резолвер закрыт")
	}
	if index < 0 || index >= len(r.candidates) {
		r.mu.Unlock()
		return fmt.Errorf("нет кандидата с индексом %d", index)
	}
	supplier := r.candidates[index]
	r.mu.Unlock()

	r.choose(supplier)
	return nil
}

// Blur закрывает список без выбора
func (r *SupplierResolver) Blur() {
	r.mu.Lock()
	if r.closed || !r.open {
		r.mu.Unlock()
		return
	}
	r.open = false
	r.highlight = -1
	state := r.snapshotLocked()
	r.mu.Unlock()

	r.changed(state)
}

// Clear сбрасывает выбор и строку поиска
func (r *SupplierResolver) Clear() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.query = ""
	r.selected = nil
	r.highlight = -1
	r.stopLocked()
	state := r.snapshotLocked()
	r.mu.Unlock()

	r.forward(nil)
	r.changed(state)
}

// Close останавливает отложенный поиск и отменяет запрос в полете
func (r *SupplierResolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.stopLocked()
}

func (r *SupplierResolver) choose(supplier models.Supplier) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	chosen := supplier
	r.selected = &chosen
	r.query = supplier.Name
	r.open = false
	r.highlight = -1
	r.stopLocked()
	state := r.snapshotLocked()
	r.mu.Unlock()

	r.forward(&supplier)
	r.changed(state)
}

// stopLocked делает устаревшими все запланированные и выполняющиеся поиски
func (r *SupplierResolver) stopLocked() {
	r.generation++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.loading = false
}

func (r *SupplierResolver) scheduleLocked(delay time.Duration) {
	r.stopLocked()
	gen := r.generation
	if delay <= 0 {
		go r.lookup(gen)
		return
	}
	r.timer = time.AfterFunc(delay, func() { r.lookup(gen) })
}

func (r *SupplierResolver) lookup(gen uint64) {
	r.mu.Lock()
	if r.closed || gen != r.generation {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.timer = nil
	r.loading = true
	query := r.query
	state := r.snapshotLocked()
	r.mu.Unlock()
	r.changed(state)

	suppliers, err := r.searcher.SuppliersForItem(ctx, r.itemID, query)
	cancel()

	r.mu.Lock()
	if r.closed || gen != r.generation {
		r.mu.Unlock()
		return
	}
	r.cancel = nil
	r.loading = false
	if err != nil {
		r.candidates = nil
		r.highlight = -1
	} else {
		r.candidates = suppliers
		if r.highlight >= len(suppliers) {
			r.highlight = -1
		}
	}
	state = r.snapshotLocked()
	r.mu.Unlock()

	if err != nil {
		r.notifier.Notify(NotificationError, lookupFailureMessage(err))
	}
	r.changed(state)
}

func lookupFailureMessage(err error) string {
	var backendErr *BackendError
	if errors.As(err, &backendErr) && backendErr.Message != "" {
		return backendErr.Message
	}
	return "Failed to load suppliers"
}

func (r *SupplierResolver) forward(supplier *models.Supplier) {
	if r.onSelect != nil {
		r.onSelect(r.itemID, supplier)
	}
}

func (r *SupplierResolver) changed(state ResolverState) {
	if r.onChange != nil {
		r.onChange(state)
	}
}
