package services

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"stockdash/server/internal/models"
)

var (
	// ErrDialogNotFound диалог закрыт или вытеснен по простою
	ErrDialogNotFound = errors.New("диалог не найден")
	// ErrUnknownLeaf товар не является листом дерева нехватки этого диалога
	ErrUnknownLeaf = errors.New("товар не входит в дерево нехватки диалога")
	// ErrNoSupplierSelected для листа еще не выбран поставщик
	ErrNoSupplierSelected = errors.New("поставщик для товара не выбран")
)

// DialogCell ячейка прогноза, по которой открывается диалог
type DialogCell struct {
	BranchID     string
	RecipeCodes  []string // Набор рецептов страницы (для возврата к таблице)
	RecipeCode   string
	RecipeName   string
	ForecastDate string
	Items        []models.ShortageNode
}

// ShortageDialog открытый диалог "Insufficient Ingredients" с выбором поставщиков.
// Ключи выбора ровно совпадают с листьями дерева; выбор не сохраняется в бэкенд.
type ShortageDialog struct {
	ID           string
	BranchID     string
	RecipeCodes  []string
	RecipeCode   string
	RecipeName   string
	ForecastDate string
	Tree         []models.ShortageNode
	OpenedAt     time.Time

	mu        sync.RWMutex
	leaves    map[string]models.ShortageNode
	order     []string
	selection map[string]*models.Supplier
	lastSeen  time.Time
}

// NewShortageDialog создает диалог и инициализирует пустой выбор по всем листьям
func NewShortageDialog(cell DialogCell) *ShortageDialog {
	now := time.Now()
	d := &ShortageDialog{
		ID:           uuid.New().String(),
		BranchID:     cell.BranchID,
		RecipeCodes:  cell.RecipeCodes,
		RecipeCode:   cell.RecipeCode,
		RecipeName:   cell.RecipeName,
		ForecastDate: cell.ForecastDate,
		Tree:         cell.Items,
		OpenedAt:     now,
		lastSeen:     now,
	}
	d.resetSelection()
	return d
}

func (d *ShortageDialog) resetSelection() {
	leaves := CollectLeaves(d.Tree)
	d.leaves = make(map[string]models.ShortageNode, len(leaves))
	d.order = make([]string, 0, len(leaves))
	d.selection = make(map[string]*models.Supplier, len(leaves))
	for _, leaf := range leaves {
		id := leaf.ItemID()
		if _, dup := d.leaves[id]; dup {
			// Один товар может встречаться в нескольких ветках, выбор общий
			continue
		}
		d.leaves[id] = leaf
		d.order = append(d.order, id)
		d.selection[id] = nil
	}
}

// Select назначает поставщика листу. nil снимает выбор.
func (d *ShortageDialog) Select(itemID string, supplier *models.Supplier) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.selection[itemID]; !ok {
		return fmt.Errorf("%s: %w", itemID, ErrUnknownLeaf)
	}
	if supplier == nil {
		d.selection[itemID] = nil
		return nil
	}
	chosen := *supplier
	d.selection[itemID] = &chosen
	return nil
}

// Selection возвращает выбранного поставщика листа
func (d *ShortageDialog) Selection(itemID string) (*models.Supplier, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	supplier, ok := d.selection[itemID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", itemID, ErrUnknownLeaf)
	}
	if supplier == nil {
		return nil, nil
	}
	chosen := *supplier
	return &chosen, nil
}

// Selections снимок выбора по всем листьям
func (d *ShortageDialog) Selections() map[string]*models.Supplier {
	d.mu.RLock()
	defer d.mu.RUnlock()

	snapshot := make(map[string]*models.Supplier, len(d.selection))
	for id, supplier := range d.selection {
		if supplier == nil {
			snapshot[id] = nil
			continue
		}
		chosen := *supplier
		snapshot[id] = &chosen
	}
	return snapshot
}

// Leaf возвращает узел листа по ID товара
func (d *ShortageDialog) Leaf(itemID string) (models.ShortageNode, bool) {
	leaf, ok := d.leaves[itemID]
	return leaf, ok
}

// LeafIDs ID листьев в порядке обхода
func (d *ShortageDialog) LeafIDs() []string {
	return append([]string(nil), d.order...)
}

// View отрисованное дерево
func (d *ShortageDialog) View() ShortageView {
	return RenderShortageTree(d.Tree)
}

func (d *ShortageDialog) touch(now time.Time) {
	d.mu.Lock()
	d.lastSeen = now
	d.mu.Unlock()
}

func (d *ShortageDialog) idleSince() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastSeen
}

// DialogSnapshot представление диалога для JSON API
type DialogSnapshot struct {
	ID            string                      `json:"id"`
	BranchID      string                      `json:"branch_id"`
	RecipeCode    string                      `json:"recipe_code"`
	RecipeName    string                      `json:"recipe_name"`
	ForecastDate  string                      `json:"forecast_date"`
	TopLevelCount int                         `json:"top_level_count"`
	Truncated     bool                        `json:"truncated"`
	Rows          []ShortageRow               `json:"rows"`
	Selections    map[string]*models.Supplier `json:"selections"`
}

// Snapshot собирает представление диалога
func (d *ShortageDialog) Snapshot() DialogSnapshot {
	view := d.View()
	return DialogSnapshot{
		ID:            d.ID,
		BranchID:      d.BranchID,
		RecipeCode:    d.RecipeCode,
		RecipeName:    d.RecipeName,
		ForecastDate:  d.ForecastDate,
		TopLevelCount: view.TopLevelCount,
		Truncated:     view.Truncated,
		Rows:          view.Rows,
		Selections:    d.Selections(),
	}
}

// DialogStore открытые диалоги в памяти процесса
type DialogStore struct {
	mu      sync.RWMutex
	dialogs map[string]*ShortageDialog
	now     func() time.Time
}

// NewDialogStore создает новое хранилище диалогов
func NewDialogStore() *DialogStore {
	return &DialogStore{
		dialogs: make(map[string]*ShortageDialog),
		now:     time.Now,
	}
}

// Open открывает новый диалог по ячейке прогноза
func (s *DialogStore) Open(cell DialogCell) *ShortageDialog {
	dialog := NewShortageDialog(cell)
	dialog.touch(s.now())

	s.mu.Lock()
	s.dialogs[dialog.ID] = dialog
	s.mu.Unlock()

	log.Printf("✅ Открыт диалог %s: %s на %s (%d листьев)", dialog.ID, dialog.RecipeCode, dialog.ForecastDate, len(dialog.order))
	return dialog
}

// Get возвращает диалог и продлевает его жизнь
func (s *DialogStore) Get(id string) (*ShortageDialog, error) {
	s.mu.RLock()
	dialog, ok := s.dialogs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrDialogNotFound
	}
	dialog.touch(s.now())
	return dialog, nil
}

// Close закрывает диалог, выбор поставщиков отбрасывается
func (s *DialogStore) Close(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dialogs[id]; !ok {
		return ErrDialogNotFound
	}
	delete(s.dialogs, id)
	return nil
}

// Len количество открытых диалогов
func (s *DialogStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.dialogs)
}

// Sweep закрывает диалоги без обращений дольше maxIdle и возвращает их ID
func (s *DialogStore) Sweep(maxIdle time.Duration) []string {
	deadline := s.now().Add(-maxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for id, dialog := range s.dialogs {
		if dialog.idleSince().Before(deadline) {
			delete(s.dialogs, id)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		log.Printf("🧹 Закрыто %d неактивных диалогов", len(removed))
	}
	return removed
}
