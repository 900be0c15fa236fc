package delivery

import (
	"strings"

	"github.com/m3rciful/requestbot/session"
)

const degradedNotice = "❌ Не удалось отправить фото"

// FormatOperatorText renders the operator-facing message for a submission.
// The rendering is pure: the same record always produces the same fields,
// and degraded only appends the attachment-failure notice.
func FormatOperatorText(rec session.Record, degraded bool) string {
	handle := strings.TrimSpace(rec.Handle)
	if handle == "" {
		handle = "не указан"
	} else if !strings.HasPrefix(handle, "@") {
		handle = "@" + handle
	}

	var b strings.Builder
	b.WriteString("🛒 НОВАЯ ЗАЯВКА НА ПОКУПКУ ТЕХНИКИ\n\n")
	b.WriteString("👤 Клиент: ")
	b.WriteString(rec.DisplayName)
	b.WriteString("\n📱 Username: ")
	b.WriteString(handle)
	b.WriteString("\n📝 Описание неисправности:\n")
	b.WriteString(rec.Description)
	if degraded {
		b.WriteString("\n\n")
		b.WriteString(degradedNotice)
	}
	return b.String()
}
