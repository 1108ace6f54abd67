package api

import (
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"stockdash/server/internal/models"
	"stockdash/server/internal/services"
)

// ForecastController страница прогноза и прокси прогнозов бэкенда
type ForecastController struct {
	forecasts       *services.ForecastService
	defaultBranchID string
}

// NewForecastController создает новый контроллер
func NewForecastController(forecasts *services.ForecastService, defaultBranchID string) *ForecastController {
	return &ForecastController{
		forecasts:       forecasts,
		defaultBranchID: defaultBranchID,
	}
}

func (c *ForecastController) branchID(ctx *gin.Context) string {
	if branchID := ctx.Query("branch_id"); branchID != "" {
		return branchID
	}
	if branchID := ctx.PostForm("branch_id"); branchID != "" {
		return branchID
	}
	return c.defaultBranchID
}

// GetForecast возвращает прогноз и сводную таблицу
// GET /api/v1/forecast?branch_id=...&recipe_codes=a;b&refresh=1
func (c *ForecastController) GetForecast(ctx *gin.Context) {
	branchID := c.branchID(ctx)
	codes := recipeCodesParam(ctx)

	resp, summary, err := c.forecasts.Summary(ctx.Request.Context(), branchID, codes, ctx.Query("refresh") == "1")
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"data":         resp.Data,
		"summary":      summary,
		"chart":        services.BuildForecastChart(resp.Data),
		"retrieved_at": resp.RetrievedAt,
	})
}

// GetRecommendations рекомендации закупки ингредиентов по прогнозу
// GET /api/v1/forecast/recommendations?branch_id=...&recipe_codes=a;b&refresh=1
func (c *ForecastController) GetRecommendations(ctx *gin.Context) {
	codes := recipeCodesParam(ctx)
	if len(codes) == 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error": "recipe_codes обязателен",
		})
		return
	}

	rec, message, err := c.forecasts.Recommendations(ctx.Request.Context(), c.branchID(ctx), codes, ctx.Query("refresh") == "1")
	if err != nil {
		respondError(ctx, err)
		return
	}
	if message == "" {
		message = "Recommendations loaded successfully"
	}
	ctx.JSON(http.StatusOK, gin.H{
		"data":    rec,
		"message": message,
	})
}

// GetRecipes возвращает готовые блюда для выбора
// GET /api/v1/recipes?branch_id=...
func (c *ForecastController) GetRecipes(ctx *gin.Context) {
	recipes, err := c.forecasts.MenuRecipes(ctx.Request.Context(), c.branchID(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"recipes": recipes,
	})
}

// SendAlert просит бэкенд разослать уведомление об отсутствии сырья
// POST /api/v1/forecast/alerts/:channel?branch_id=...
func (c *ForecastController) SendAlert(ctx *gin.Context) {
	channel, err := services.ParseAlertChannel(ctx.Param("channel"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	message, err := c.forecasts.SendAlert(ctx.Request.Context(), c.branchID(ctx), channel)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"message": message,
	})
}

// forecastPage данные шаблона forecast.html
type forecastPage struct {
	BranchID         string
	Search           string
	Recipes          []models.Recipe
	TotalRecipes     int
	Selected         map[string]bool
	SelectedCount    int
	RecipeCodesParam string
	Summary          *services.ForecastSummary
	Chart            *services.ForecastChart
	Recommendations  *models.PurchaseRecommendation
	RetrievedAt      string
	Notice           string
	Errors           []string
}

// ForecastPage страница выбора рецептов и сводной таблицы
// GET /dashboard/forecast?branch_id=...&recipe_codes=a;b&search=...
func (c *ForecastController) ForecastPage(ctx *gin.Context) {
	branchID := c.branchID(ctx)
	codes := recipeCodesParam(ctx)
	// Чекбоксы формы выбора рецептов
	codes = append(codes, ctx.QueryArray("recipe")...)
	page := forecastPage{
		BranchID:         branchID,
		Search:           ctx.Query("search"),
		Selected:         make(map[string]bool, len(codes)),
		SelectedCount:    len(codes),
		RecipeCodesParam: strings.Join(codes, ";"),
		Notice:           ctx.Query("notice"),
	}
	for _, code := range codes {
		page.Selected[code] = true
	}

	recipes, err := c.forecasts.MenuRecipes(ctx.Request.Context(), branchID)
	if err != nil {
		log.Printf("⚠️ Не удалось загрузить рецепты: %v", err)
		page.Errors = append(page.Errors, "Failed to fetch recipes")
	}
	page.TotalRecipes = len(recipes)
	page.Recipes = filterRecipes(recipes, page.Search)

	if len(codes) > 0 {
		refresh := ctx.Query("refresh") == "1"
		resp, summary, err := c.forecasts.Summary(ctx.Request.Context(), branchID, codes, refresh)
		if err != nil {
			log.Printf("⚠️ Не удалось загрузить прогноз: %v", err)
			page.Errors = append(page.Errors, forecastErrorMessage(err))
		} else {
			chart := services.BuildForecastChart(resp.Data)
			page.Summary = &summary
			page.Chart = &chart
			page.RetrievedAt = resp.RetrievedAt

			rec, _, err := c.forecasts.RecommendFor(ctx.Request.Context(), branchID, codes, resp.Data)
			if err != nil {
				log.Printf("⚠️ Не удалось получить рекомендации закупки: %v", err)
				page.Errors = append(page.Errors, "Failed to generate recommendations")
			} else {
				page.Recommendations = rec
			}
		}
	}

	ctx.HTML(http.StatusOK, "forecast.html", page)
}

// SendAlertForm отправка уведомления со страницы прогноза
// POST /dashboard/forecast/alerts/:channel
func (c *ForecastController) SendAlertForm(ctx *gin.Context) {
	branchID := c.branchID(ctx)
	codes := ctx.PostForm("recipe_codes")

	notice := ""
	channel, err := services.ParseAlertChannel(ctx.Param("channel"))
	if err == nil {
		notice, err = c.forecasts.SendAlert(ctx.Request.Context(), branchID, channel)
	}
	if err != nil {
		log.Printf("⚠️ Не удалось отправить уведомление: %v", err)
		notice = "Failed to send notification"
	} else if notice == "" {
		notice = "Notification sent"
	}

	ctx.Redirect(http.StatusSeeOther, forecastPageURL(branchID, codes, notice))
}

// recipeCodesParam читает recipe_codes=a;b из сырой строки запроса.
// url.ParseQuery отбрасывает пары с неэкранированной ";", поэтому ctx.Query здесь не подходит.
func recipeCodesParam(ctx *gin.Context) []string {
	var codes []string
	for _, pair := range strings.Split(ctx.Request.URL.RawQuery, "&") {
		key, value, _ := strings.Cut(pair, "=")
		if name, err := url.QueryUnescape(key); err != nil || name != "recipe_codes" {
			continue
		}
		decoded, err := url.QueryUnescape(value)
		if err != nil {
			log.Printf("⚠️ Некорректный параметр recipe_codes: %v", err)
			continue
		}
		codes = append(codes, services.SplitRecipeCodes(decoded)...)
	}
	return codes
}

func forecastErrorMessage(err error) string {
	if status := errorStatus(err); status == http.StatusNotFound {
		return "No forecast data available for the selected menu items"
	}
	return "Failed to fetch forecast data"
}

// filterRecipes фильтрует рецепты по названию или коду
func filterRecipes(recipes []models.Recipe, search string) []models.Recipe {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return recipes
	}
	filtered := make([]models.Recipe, 0, len(recipes))
	for _, recipe := range recipes {
		if strings.Contains(strings.ToLower(recipe.Name), search) || strings.Contains(strings.ToLower(recipe.Code), search) {
			filtered = append(filtered, recipe)
		}
	}
	return filtered
}

func forecastPageURL(branchID, recipeCodes, notice string) string {
	query := url.Values{}
	if branchID != "" {
		query.Set("branch_id", branchID)
	}
	if recipeCodes != "" {
		query.Set("recipe_codes", recipeCodes)
	}
	if notice != "" {
		query.Set("notice", notice)
	}
	if len(query) == 0 {
		return "/dashboard/forecast"
	}
	return "/dashboard/forecast?" + query.Encode()
}
