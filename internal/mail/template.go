package mail

import (
	"fmt"

	"github.com/aymerick/raymond"
)

// welcomeData — данные шаблона приветственного письма.
type welcomeData struct {
	Name   string
	Email  string
	AppURL string
}

const welcomeSource = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif;">
  <h2>Welcome to Borrowbox, {{Name}}!</h2>
  <p>Your account <b>{{Email}}</b> has been created.</p>
  {{#if AppURL}}<p><a href="{{AppURL}}">Start browsing the catalogue</a></p>{{/if}}
</body>
</html>
`

var welcomeTemplate = raymond.MustParse(welcomeSource)

// renderWelcome рендерит HTML приветственного письма.
// Значения экранируются handlebars.
func renderWelcome(data welcomeData) (string, error) {
	body, err := welcomeTemplate.Exec(data)
	if err != nil {
		return "", fmt.Errorf("ошибка рендеринга шаблона welcome: %w", err)
	}
	return body, nil
}
