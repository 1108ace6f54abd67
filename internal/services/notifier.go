package services

import "log"

// NotificationLevel уровень уведомления пользователю
type NotificationLevel string

const (
	NotificationSuccess NotificationLevel = "success"
	NotificationError   NotificationLevel = "error"
)

// Notifier доставляет короткие неблокирующие уведомления (в браузер диалога, в лог и т.д.)
type Notifier interface {
	Notify(level NotificationLevel, message string)
}

// NotifierFunc адаптер функции к Notifier
type NotifierFunc func(level NotificationLevel, message string)

// Notify вызывает f
func (f NotifierFunc) Notify(level NotificationLevel, message string) {
	f(level, message)
}

// LogNotifier пишет уведомления в лог (когда у диалога нет подключенного клиента)
type LogNotifier struct{}

// Notify логирует уведомление
func (LogNotifier) Notify(level NotificationLevel, message string) {
	if level == NotificationError {
		log.Printf("⚠️ %s", message)
		return
	}
	log.Printf("✅ %s", message)
}
