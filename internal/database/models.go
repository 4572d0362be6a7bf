package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Constraint names from migrations, used to tell duplicate errors apart.
const (
	ConstraintUsersNumeroRegistro = "users_numero_registro_key"
	ConstraintUsersEmail          = "users_email_key"
)

// User is the bun model of the users table.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID             uuid.UUID  `bun:"id,pk,type:uuid"`
	Nome           string     `bun:"nome,notnull"`
	NumeroRegistro string     `bun:"numero_registro,notnull"`
	Email          string     `bun:"email,notnull"`
	PasswordHash   string     `bun:"password_hash,notnull"`
	ResetToken     *string    `bun:"reset_token"`
	ResetExpires   *time.Time `bun:"reset_expires"`
	CreatedAt      time.Time  `bun:"created_at,notnull"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull"`
}
