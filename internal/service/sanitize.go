package service

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// maxSanitizeRounds — предел проходов очистки до неподвижной точки.
const maxSanitizeRounds = 8

// Sanitizer очищает пользовательский текст от HTML-разметки.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer создаёт Sanitizer со строгой политикой (вся разметка удаляется).
func NewSanitizer() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// Text возвращает строку без тегов и пробелов по краям.
// Экранированная (&lt;script&gt;) и склеенная (<<b>script>) разметка удаляется:
// проход "раскрыть сущности, очистить, раскрыть" повторяется, пока результат
// не перестанет меняться. Если неподвижная точка не достигнута,
// возвращается экранированный результат политики.
func (s *Sanitizer) Text(in string) string {
	cur := in
	for i := 0; i < maxSanitizeRounds; i++ {
		next := strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(html.UnescapeString(cur))))
		if next == cur {
			return cur
		}
		cur = next
	}
	return strings.TrimSpace(s.policy.Sanitize(cur))
}
