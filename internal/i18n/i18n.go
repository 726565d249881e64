// Package i18n holds the reply catalog. Keys are the English texts; Russian
// translations are registered for every key, and plural-sensitive keys carry
// CLDR plural cases in both languages.
package i18n

import (
	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Reply keys.
const (
	OwnerOnlyAdd       = "Only the server owner can add users."
	OwnerOnlyRemove    = "Only the server owner can remove users."
	AlreadyAllowed     = "User %s is already in the allow-list."
	Allowed            = "User %s was added to the allow-list."
	NotAllowed         = "User %s is not in the allow-list."
	Disallowed         = "User %s was removed from the allow-list."
	AllowListNoFile    = "The allow-list file was not found."
	AllowListEmpty     = "The allow-list is empty."
	AllowListHeader    = "Allowed users:\n%s"
	AmountPositive     = "The number of messages to delete must be greater than 0."
	NoPermission       = "You do not have permission to use this command."
	ConfirmClearAll    = "Are you sure you want to delete all messages in %s?"
	ButtonYes          = "Yes"
	ButtonNo           = "No"
	NotInitiator       = "You did not initiate this command."
	ClearCancelled     = "Deletion cancelled."
	ClearTimedOut      = "The confirmation timed out. Nothing was deleted."
	NoMessages         = "There are no messages in this channel."
	ClearedAll         = "All %d messages in this channel were deleted."
	ClearedLast        = "The last %d messages in this channel were deleted."
	ClearFailed        = "Failed to read the channel history. %d messages were deleted."
	InteractionExpired = "This interaction has expired."
	GenericError       = "Something went wrong. Try again later."

	AdminRequired      = "You need administrator permissions to use this command."
	CannotLockAdmin    = "You cannot restrict an administrator."
	CannotLockOwner    = "You cannot restrict the server owner."
	LockHierarchy      = "The user's top role is higher than or equal to the bot's. Restriction is not possible."
	AmountUnitTogether = "Give both `amount` and `unit`, or neither for the maximum restriction."
	AlreadyLocked      = "User %s already has an active `%s` lock."
	DurationPositive   = "The time value cannot be 0 or negative."
	RoleNotFound       = "The chat banned role was not found."
	ChannelLocked      = "🔒 %s can no longer write in the channels.\n**Reason:** %s"
	TimeoutTooLong     = "The maximum timeout is 28 days."
	DurationTooLong    = "The lock duration is too long."
	ServerLocked       = "🔒 %s is restricted for %s.\n**Reason:** %s"
	MaxDuration        = "the maximum of 28 days"
	LockForbidden      = "No permission to restrict this user."
	AdminUnrestricted  = "Administrators have no restrictions."
	UnlockHierarchy    = "The user's top role is higher than or equal to the bot's. Unlocking is not possible."
	NoActiveLock       = "✅ User %s has no active lock in scope `%s`."
	ChannelUnlocked    = "🔓 %s was unlocked in the channels.\n**Reason:** %s"
	NotChannelLocked   = "%s was not locked in the channels."
	ServerUnlocked     = "🔓 %s was unlocked on the server.\n**Reason:** %s"
	UnlockForbidden    = "No permission to unlock this user."
	AutoUnlockReason   = "Automatic unlock"
	DurationSeconds    = "%d seconds"
	DurationMinutes    = "%d minutes"
	DurationHours      = "%d hours"
	DurationDays       = "%d days"
	CmdClearDesc       = "Delete messages in the channel"
	CmdClearAmountDesc = "How many messages to delete"
	CmdClearAddDesc    = "Add a user to the allow-list"
	CmdClearRemoveDesc = "Remove a user from the allow-list"
	CmdClearShowDesc   = "Show the allow-listed users"
	CmdLockDesc        = "Restrict a user"
	CmdUnlockDesc      = "Lift a user's restriction"
	OptUserDesc        = "Target user"
	OptScopeDesc       = "Channel: the chat banned role, server: a server-wide timeout"
	OptReasonDesc      = "Reason"
	OptAmountDesc      = "Lock duration"
	OptUnitDesc        = "Time unit"
	ChoiceScopeServer  = "Server"
	ChoiceScopeChannel = "Channel"
	ChoiceUnitSeconds  = "seconds"
	ChoiceUnitMinutes  = "minutes"
	ChoiceUnitHours    = "hours"
	ChoiceUnitDays     = "days"
)

var russian = map[string]string{
	OwnerOnlyAdd:       "Только владелец сервера может добавлять пользователей.",
	OwnerOnlyRemove:    "Только владелец сервера может удалять пользователей.",
	AlreadyAllowed:     "Пользователь %s уже добавлен в список разрешенных.",
	Allowed:            "Пользователь %s добавлен в список разрешенных.",
	NotAllowed:         "Пользователь %s не найден в списке.",
	Disallowed:         "Пользователь %s удален из списка разрешенных.",
	AllowListNoFile:    "Файл с разрешенными пользователями не найден.",
	AllowListEmpty:     "Список разрешенных пользователей пуст.",
	AllowListHeader:    "Список добавленных пользователей:\n%s",
	AmountPositive:     "Количество сообщений для удаления должно быть больше 0.",
	NoPermission:       "У вас нет прав для использования этой команды.",
	ConfirmClearAll:    "Вы уверены, что хотите удалить все сообщения в %s?",
	ButtonYes:          "Да",
	ButtonNo:           "Нет",
	NotInitiator:       "Вы не инициировали эту команду.",
	ClearCancelled:     "Удаление отменено.",
	ClearTimedOut:      "Время подтверждения истекло. Ничего не удалено.",
	NoMessages:         "В данном канале нет сообщений.",
	InteractionExpired: "Это взаимодействие устарело.",
	GenericError:       "Что-то пошло не так. Попробуйте позже.",

	AdminRequired:      "❌ У вас нет прав администратора для использования данной команды.",
	CannotLockAdmin:    "❌ Нельзя ограничить администратора.",
	CannotLockOwner:    "❌ Нельзя ограничить владельца сервера.",
	LockHierarchy:      "❌ У пользователя роль выше или равна роли бота. Ограничение невозможно.",
	AmountUnitTogether: "⚠️ Укажите и `amount`, и `unit` вместе, либо не указывайте вовсе для максимальной блокировки.",
	AlreadyLocked:      "❌ У пользователя %s уже есть активная блокировка `%s`.",
	DurationPositive:   "⚠️ Значение времени не может быть равно 0 или быть отрицательным.",
	RoleNotFound:       "❌ Не найдена роль chat banned.",
	ChannelLocked:      "🔒 %s теперь не может писать в каналах.\n**Причина:** %s",
	TimeoutTooLong:     "❌ Максимальное время таймаута — 28 дней.",
	DurationTooLong:    "❌ Слишком длительный срок блокировки.",
	ServerLocked:       "🔒 %s ограничен на %s.\n**Причина:** %s",
	MaxDuration:        "максимальный срок (28 дней)",
	LockForbidden:      "❌ Нет прав ограничить этого пользователя.",
	AdminUnrestricted:  "❌ У администратора нет ограничений.",
	UnlockHierarchy:    "❌ У пользователя роль выше или равна роли бота. Снятие невозможно.",
	NoActiveLock:       "✅ У пользователя %s нет активной блокировки в области `%s`.",
	ChannelUnlocked:    "🔓 %s разблокирован в каналах.\n**Причина:** %s",
	NotChannelLocked:   "%s не был заблокирован в каналах.",
	ServerUnlocked:     "🔓 %s разблокирован на сервере.\n**Причина:** %s",
	UnlockForbidden:    "❌ Нет прав разблокировать пользователя.",
	CmdClearDesc:       "Удалить сообщения в канале",
	CmdClearAmountDesc: "Сколько сообщений удалить",
	CmdClearAddDesc:    "Добавить пользователя в список разрешенных",
	CmdClearRemoveDesc: "Удалить пользователя из списка разрешенных",
	CmdClearShowDesc:   "Показать добавленных пользователей",
	CmdLockDesc:        "Ограничить пользователя",
	CmdUnlockDesc:      "Снять ограничение на отправку сообщений у пользователя",
	OptUserDesc:        "Пользователь",
	OptScopeDesc:       "Канал: роль chat banned, сервер: таймаут на всём сервере",
	OptReasonDesc:      "Причина",
	OptAmountDesc:      "Время блокировки",
	OptUnitDesc:        "Единица времени",
	ChoiceScopeServer:  "Сервер",
	ChoiceScopeChannel: "Канал",
	ChoiceUnitSeconds:  "секунды",
	ChoiceUnitMinutes:  "минуты",
	ChoiceUnitHours:    "часы",
	ChoiceUnitDays:     "дни",
}

// pluralForms lists the English one/other forms and the Russian one/few/many forms.
var pluralForms = []struct {
	key             string
	enOne, enOther  string
	ruOne, ruFew    string
	ruMany, ruOther string
}{
	{
		key:     ClearedAll,
		enOne:   "All %d message in this channel was deleted.",
		enOther: "All %d messages in this channel were deleted.",
		ruOne:   "Все %d сообщение в данном канале удалены.",
		ruFew:   "Все %d сообщения в данном канале удалены.",
		ruMany:  "Все %d сообщений в данном канале удалены.",
		ruOther: "Все %d сообщения в данном канале удалены.",
	},
	{
		key:     ClearedLast,
		enOne:   "The last %d message in this channel was deleted.",
		enOther: "The last %d messages in this channel were deleted.",
		ruOne:   "Последние %d сообщение в данном канале удалены.",
		ruFew:   "Последние %d сообщения в данном канале удалены.",
		ruMany:  "Последние %d сообщений в данном канале удалены.",
		ruOther: "Последние %d сообщения в данном канале удалены.",
	},
	{
		key:     ClearFailed,
		enOne:   "Failed to read the channel history. %d message was deleted.",
		enOther: "Failed to read the channel history. %d messages were deleted.",
		ruOne:   "Не удалось прочитать историю канала. Удалено %d сообщение.",
		ruFew:   "Не удалось прочитать историю канала. Удалено %d сообщения.",
		ruMany:  "Не удалось прочитать историю канала. Удалено %d сообщений.",
		ruOther: "Не удалось прочитать историю канала. Удалено %d сообщения.",
	},
	{
		key:     DurationSeconds,
		enOne:   "%d second",
		enOther: "%d seconds",
		ruOne:   "%d секунду",
		ruFew:   "%d секунды",
		ruMany:  "%d секунд",
		ruOther: "%d секунды",
	},
	{
		key:     DurationMinutes,
		enOne:   "%d minute",
		enOther: "%d minutes",
		ruOne:   "%d минуту",
		ruFew:   "%d минуты",
		ruMany:  "%d минут",
		ruOther: "%d минуты",
	},
	{
		key:     DurationHours,
		enOne:   "%d hour",
		enOther: "%d hours",
		ruOne:   "%d час",
		ruFew:   "%d часа",
		ruMany:  "%d часов",
		ruOther: "%d часа",
	},
	{
		key:     DurationDays,
		enOne:   "%d day",
		enOther: "%d days",
		ruOne:   "%d день",
		ruFew:   "%d дня",
		ruMany:  "%d дней",
		ruOther: "%d дня",
	},
}

var (
	cat      = newCatalog()
	english  = message.NewPrinter(language.English, message.Catalog(cat))
	russianP = message.NewPrinter(language.Russian, message.Catalog(cat))
)

func newCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, msg := range russian {
		mustSet(b.SetString(language.Russian, key, msg))
	}
	for _, f := range pluralForms {
		mustSet(b.Set(language.English, f.key, plural.Selectf(1, "%d",
			plural.One, f.enOne,
			plural.Other, f.enOther)))
		mustSet(b.Set(language.Russian, f.key, plural.Selectf(1, "%d",
			plural.One, f.ruOne,
			plural.Few, f.ruFew,
			plural.Many, f.ruMany,
			plural.Other, f.ruOther)))
	}
	return b
}

func mustSet(err error) {
	if err != nil {
		panic("i18n: " + err.Error())
	}
}

// Printer returns the printer for a Discord locale such as "ru" or "en-US".
// Anything that is not Russian gets English.
func Printer(locale string) *message.Printer {
	if IsRussian(locale) {
		return russianP
	}
	return english
}

// IsRussian reports whether locale is a Russian locale tag.
func IsRussian(locale string) bool {
	if locale == "" {
		return false
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return false
	}
	base, _ := tag.Base()
	ru, _ := language.Russian.Base()
	return base == ru
}

// Translate returns the Russian text of key, or key itself when no translation
// exists. It is used for command and option descriptions.
func Translate(key string) string {
	return russianP.Sprintf(key)
}
