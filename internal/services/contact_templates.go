package services

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed templates/contact_messages.yaml
var defaultContactTemplates []byte

// contactTemplatesFile формат YAML файла шаблонов
type contactTemplatesFile struct {
	Default  string            `yaml:"default"`
	Messages map[string]string `yaml:"messages"`
}

// ContactTemplates локализованные шаблоны сообщения поставщику
type ContactTemplates struct {
	defaultLocale string
	locales       []string // locales[0] = defaultLocale, индексы совпадают с matcher
	messages      map[string]string
	matcher       language.Matcher
}

// LoadContactTemplates загружает шаблоны из файла (если указан) или встроенные
func LoadContactTemplates(path, defaultLocale string) (*ContactTemplates, error) {
	data := defaultContactTemplates
	if path != "" {
		fileData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("не удалось прочитать шаблоны сообщений %s: %w", path, err)
		}
		data = fileData
	}
	return ParseContactTemplates(data, defaultLocale)
}

// ParseContactTemplates разбирает YAML шаблонов. defaultLocale переопределяет default из файла.
func ParseContactTemplates(data []byte, defaultLocale string) (*ContactTemplates, error) {
	var file contactTemplatesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("ошибка разбора шаблонов сообщений: %w", err)
	}
	if len(file.Messages) == 0 {
		return nil, fmt.Errorf("шаблоны сообщений пусты")
	}

	def := defaultLocale
	if def == "" {
		def = file.Default
	}
	if _, ok := file.Messages[def]; !ok {
		return nil, fmt.Errorf("нет шаблона для локали по умолчанию %q", def)
	}

	others := make([]string, 0, len(file.Messages)-1)
	for locale := range file.Messages {
		if locale != def {
			others = append(others, locale)
		}
	}
	sort.Strings(others)
	locales := append([]string{def}, others...)

	tags := make([]language.Tag, 0, len(locales))
	for _, locale := range locales {
		tag, err := language.Parse(locale)
		if err != nil {
			return nil, fmt.Errorf("некорректная локаль шаблона %q: %w", locale, err)
		}
		tags = append(tags, tag)
	}

	return &ContactTemplates{
		defaultLocale: def,
		locales:       locales,
		messages:      file.Messages,
		matcher:       language.NewMatcher(tags),
	}, nil
}

// DefaultLocale возвращает локаль по умолчанию
func (t *ContactTemplates) DefaultLocale() string {
	return t.defaultLocale
}

// Match подбирает локаль шаблона по заголовку Accept-Language
func (t *ContactTemplates) Match(acceptLanguage string) string {
	if acceptLanguage == "" {
		return t.defaultLocale
	}
	prefs, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(prefs) == 0 {
		return t.defaultLocale
	}
	_, index, confidence := t.matcher.Match(prefs...)
	if confidence == language.No || index < 0 || index >= len(t.locales) {
		return t.defaultLocale
	}
	return t.locales[index]
}

// Render подставляет имена в шаблон. Неизвестная локаль -> локаль по умолчанию.
func (t *ContactTemplates) Render(locale, supplierName, itemName, business string) string {
	tmpl, ok := t.messages[locale]
	if !ok {
		tmpl = t.messages[t.defaultLocale]
	}
	return strings.NewReplacer(
		"{supplier}", supplierName,
		"{item}", itemName,
		"{business}", business,
	).Replace(tmpl)
}
