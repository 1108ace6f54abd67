package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"stockdash/server/internal/models"
	"stockdash/server/internal/services"
)

// DialogController диалог "Insufficient Ingredients": выбор поставщиков и связь с ними
type DialogController struct {
	store           *services.DialogStore
	forecasts       *services.ForecastService
	dispatcher      *services.ContactDispatcher
	hub             *Hub
	defaultBranchID string
}

// NewDialogController создает новый контроллер
func NewDialogController(store *services.DialogStore, forecasts *services.ForecastService, dispatcher *services.ContactDispatcher, hub *Hub, defaultBranchID string) *DialogController {
	return &DialogController{
		store:           store,
		forecasts:       forecasts,
		dispatcher:      dispatcher,
		hub:             hub,
		defaultBranchID: defaultBranchID,
	}
}

// openDialogRequest ячейка таблицы прогноза
type openDialogRequest struct {
	BranchID    string `json:"branch_id" form:"branch_id"`
	RecipeCodes string `json:"recipe_codes" form:"recipe_codes"`
	Date        string `json:"date" form:"date" binding:"required"`
	RecipeCode  string `json:"recipe_code" form:"recipe_code" binding:"required"`
}

func (c *DialogController) open(ctx context.Context, req openDialogRequest) (*services.ShortageDialog, error) {
	branchID := req.BranchID
	if branchID == "" {
		branchID = c.defaultBranchID
	}
	codes := services.SplitRecipeCodes(req.RecipeCodes)

	item, err := c.forecasts.Cell(ctx, branchID, codes, req.Date, req.RecipeCode)
	if err != nil {
		return nil, err
	}

	return c.store.Open(services.DialogCell{
		BranchID:     branchID,
		RecipeCodes:  codes,
		RecipeCode:   item.RecipeCode,
		RecipeName:   item.RecipeName,
		ForecastDate: req.Date,
		Items:        item.NotEnoughItems,
	}), nil
}

// OpenDialog POST /api/v1/dialogs
func (c *DialogController) OpenDialog(ctx *gin.Context) {
	var req openDialogRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error":   "Неверные данные",
			"details": err.Error(),
		})
		return
	}

	dialog, err := c.open(ctx.Request.Context(), req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, dialog.Snapshot())
}

// GetDialog GET /api/v1/dialogs/:id
func (c *DialogController) GetDialog(ctx *gin.Context) {
	dialog, err := c.store.Get(ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, dialog.Snapshot())
}

// SetSupplier назначает (или снимает при null) поставщика листу
// PUT /api/v1/dialogs/:id/items/:item_id/supplier  {"supplier": {...} | null}
func (c *DialogController) SetSupplier(ctx *gin.Context) {
	var body struct {
		Supplier *models.Supplier `json:"supplier"`
	}
	if err := ctx.ShouldBindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error":   "Неверные данные",
			"details": err.Error(),
		})
		return
	}

	dialog, err := c.store.Get(ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	itemID := ctx.Param("item_id")
	if err := c.applySelection(dialog, itemID, body.Supplier); err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"item_id":  itemID,
		"supplier": body.Supplier,
	})
}

// applySelection пишет выбор в диалог и рассылает его всем окнам диалога
func (c *DialogController) applySelection(dialog *services.ShortageDialog, itemID string, supplier *models.Supplier) error {
	if err := dialog.Select(itemID, supplier); err != nil {
		return err
	}
	c.hub.BroadcastJSON(dialog.ID, wsServerMessage{Type: "selected", ItemID: itemID, Supplier: supplier})
	return nil
}

// dispatch собирает ссылку на WhatsApp для выбранного поставщика листа
func (c *DialogController) dispatch(ctx *gin.Context) (*services.ShortageDialog, *services.ContactResult, error) {
	dialog, err := c.store.Get(ctx.Param("id"))
	if err != nil {
		return nil, nil, err
	}
	itemID := ctx.Param("item_id")
	leaf, ok := dialog.Leaf(itemID)
	if !ok {
		return dialog, nil, fmt.Errorf("%s: %w", itemID, services.ErrUnknownLeaf)
	}
	supplier, err := dialog.Selection(itemID)
	if err != nil {
		return dialog, nil, err
	}
	if supplier == nil {
		return dialog, nil, services.ErrNoSupplierSelected
	}

	locale := ctx.Query("locale")
	if locale == "" {
		locale = c.dispatcher.Templates().Match(ctx.GetHeader("Accept-Language"))
	}

	result, err := c.dispatcher.Dispatch(ctx.Request.Context(), services.ContactRequest{
		DialogID:     dialog.ID,
		RecipeCode:   dialog.RecipeCode,
		ForecastDate: dialog.ForecastDate,
		Locale:       locale,
		Supplier:     *supplier,
		Item:         leaf,
	}, c.hub.Notifier(dialog.ID))
	return dialog, result, err
}

// Contact POST /api/v1/dialogs/:id/items/:item_id/contact
func (c *DialogController) Contact(ctx *gin.Context) {
	_, result, err := c.dispatch(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, result)
}

// CloseDialog DELETE /api/v1/dialogs/:id
func (c *DialogController) CloseDialog(ctx *gin.Context) {
	id := ctx.Param("id")
	if err := c.store.Close(id); err != nil {
		respondError(ctx, err)
		return
	}
	c.hub.CloseRoom(id)
	ctx.Status(http.StatusNoContent)
}

// dialogRow строка дерева вместе с выбранным поставщиком
type dialogRow struct {
	services.ShortageRow
	Supplier *models.Supplier
}

// dialogPage данные шаблона dialog.html
type dialogPage struct {
	Dialog        *services.ShortageDialog
	TopLevelCount int
	Truncated     bool
	Rows          []dialogRow
	BackURL       string
	Notice        string
	Error         string
}

// OpenDialogForm клик по ячейке таблицы прогноза
// POST /dashboard/forecast/dialogs
func (c *DialogController) OpenDialogForm(ctx *gin.Context) {
	var req openDialogRequest
	if err := ctx.ShouldBind(&req); err != nil {
		ctx.Redirect(http.StatusSeeOther, forecastPageURL(req.BranchID, req.RecipeCodes, "Select a forecast cell to inspect"))
		return
	}

	dialog, err := c.open(ctx.Request.Context(), req)
	if err != nil {
		log.Printf("⚠️ Не удалось открыть диалог %s/%s: %v", req.RecipeCode, req.Date, err)
		notice := "Failed to open insufficient ingredients"
		if errors.Is(err, services.ErrNotClickable) {
			notice = "Ingredients are sufficient for this forecast"
		}
		ctx.Redirect(http.StatusSeeOther, forecastPageURL(req.BranchID, req.RecipeCodes, notice))
		return
	}
	ctx.Redirect(http.StatusSeeOther, "/dashboard/dialogs/"+dialog.ID)
}

// DialogPage GET /dashboard/dialogs/:id
func (c *DialogController) DialogPage(ctx *gin.Context) {
	dialog, err := c.store.Get(ctx.Param("id"))
	if err != nil {
		ctx.Redirect(http.StatusSeeOther, forecastPageURL(c.defaultBranchID, "", "The dialog was closed"))
		return
	}

	view := dialog.View()
	selections := dialog.Selections()
	rows := make([]dialogRow, 0, len(view.Rows))
	for _, row := range view.Rows {
		rows = append(rows, dialogRow{ShortageRow: row, Supplier: selections[row.ItemID]})
	}

	ctx.HTML(http.StatusOK, "dialog.html", dialogPage{
		Dialog:        dialog,
		TopLevelCount: view.TopLevelCount,
		Truncated:     view.Truncated,
		Rows:          rows,
		BackURL:       forecastPageURL(dialog.BranchID, strings.Join(dialog.RecipeCodes, ";"), ""),
		Notice:        ctx.Query("notice"),
		Error:         ctx.Query("error"),
	})
}

// CloseDialogForm POST /dashboard/dialogs/:id/close
func (c *DialogController) CloseDialogForm(ctx *gin.Context) {
	id := ctx.Param("id")
	back := forecastPageURL(c.defaultBranchID, "", "")
	if dialog, err := c.store.Get(id); err == nil {
		back = forecastPageURL(dialog.BranchID, strings.Join(dialog.RecipeCodes, ";"), "")
		_ = c.store.Close(id)
		c.hub.CloseRoom(id)
	}
	ctx.Redirect(http.StatusSeeOther, back)
}

// ContactRedirect открывает чат WhatsApp (форма с target=_blank).
// Только POST: запись в журнал и событие в Kafka не должны срабатывать от предзагрузки ссылок.
// POST /dashboard/dialogs/:id/items/:item_id/contact
func (c *DialogController) ContactRedirect(ctx *gin.Context) {
	dialog, result, err := c.dispatch(ctx)
	if err != nil {
		if dialog == nil {
			respondError(ctx, err)
			return
		}
		query := url.Values{}
		query.Set("error", contactErrorMessage(err))
		ctx.Redirect(http.StatusSeeOther, "/dashboard/dialogs/"+dialog.ID+"?"+query.Encode())
		return
	}
	ctx.Redirect(http.StatusSeeOther, result.URI)
}

func contactErrorMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrNoSupplierSelected):
		return "Select a supplier first"
	case errors.Is(err, services.ErrNoWhatsappNumber):
		return "The selected supplier has no WhatsApp number"
	default:
		return "Unable to contact supplier"
	}
}

// Export GET /dashboard/dialogs/:id/export.xlsx
func (c *DialogController) Export(ctx *gin.Context) {
	dialog, err := c.store.Get(ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	data, err := services.ExportShortageWorkbook(dialog)
	if err != nil {
		log.Printf("❌ Ошибка выгрузки диалога %s: %v", dialog.ID, err)
		respondError(ctx, err)
		return
	}

	ctx.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": services.ShortageExportFilename(dialog),
	}))
	ctx.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// ListContacts журнал отправленных ссылок поставщикам
// GET /api/v1/contacts?item_id=...&limit=20
func (c *DialogController) ListContacts(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	logs, err := c.dispatcher.RecentContacts(ctx.Request.Context(), ctx.Query("item_id"), limit)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"contacts": logs,
	})
}
