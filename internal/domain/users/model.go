package users

import (
	"strconv"
	"time"
)

type Role string

const (
	RoleViewer Role = "viewer"
	RoleAdmin  Role = "admin" // может править точки заказа
)

type User struct {
	ID         int64
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
	Role       Role
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PrefKey идентификатор пользователя для хранилища настроек.
func (u *User) PrefKey() string { return strconv.FormatInt(u.TelegramID, 10) }

func (u *User) IsAdmin() bool { return u != nil && u.Role == RoleAdmin }

func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return "@" + u.Username
	}
	return strconv.FormatInt(u.TelegramID, 10)
}

type Telegram struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}
