package app

// User-facing texts. The bot speaks Russian to submitters; operator-side
// formatting lives in the delivery package.
const (
	textWelcome = `🛒 Покупка бытовой техники.
🔄 Возможен Trade-in.

Присылайте фото и описание неисправности - администратор обязательно даст обратную связь!

📸 Теперь отправь мне фотографию техники:`

	textPhotoReceived = `✅ Фото получено! Теперь опиши неисправность техники:

• Какая модель?
• Что случилось?
• Какие симптомы?`

	textSubmitted = `✅ Спасибо! Ваши фото и описание отправлены администратору! 🎉

Мы свяжемся с вами в ближайшее время для обратной связи.

Если хотите отправить еще одну заявку, напишите /start`

	textAlreadyActive = `⚠️ У вас уже есть незавершённая заявка.
Опишите неисправность или напишите /cancel, чтобы начать заново.`

	textNoSession = "❌ Сначала отправь фото! Напиши /start"

	textCancelled = `❌ Заявка отменена.

Если хотите оставить заявку на покупку техники, напишите /start`

	textHelp = `🤖 Помощь по боту:

🛒 Покупка бытовой техники с Trade-in

/start - оставить заявку на покупку техники
/help - показать эту справку
/cancel - отменить текущую заявку

Как это работает:
1. Отправляете фото техники
2. Описываете неисправность
3. Администратор связывается с вами для оценки и обратной связи`

	textDocumentNotPhoto = "❌ Отправьте фотографию обычным способом, не файлом."

	textRateLimited = "⏳ Слишком много сообщений, подождите немного."

	textStatsDisabled = "Архив заявок отключен."
)
