package models

const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

const (
	// NotesMaxLength максимальная длина комментария к заявке
	NotesMaxLength = 500

	// DefaultOpenHour / DefaultCloseHour окно рабочих часов: старт в [7, 20)
	DefaultOpenHour  = 7
	DefaultCloseHour = 20

	// DefaultWeeklyLimit лимит активных заявок на неделю по умолчанию
	DefaultWeeklyLimit = 3

	// DefaultSweepIntervalSec период фонового перевода заявок в completed
	DefaultSweepIntervalSec = 300

	// DefaultReportCacheTTL время жизни кэша недельного отчёта в Redis
	DefaultReportCacheTTL = 5 * 60 // 5 минут в секундах

	// RateLimitRequests количество запросов в окне
	RateLimitRequests = 60

	// RateLimitWindow окно ограничения частоты запросов
	RateLimitWindow = 60 // 1 минута в секундах
)
