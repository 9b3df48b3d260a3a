package repository

import (
	"context"

	"github.com/chatapp/gateway-server-go/internal/database"
	"github.com/chatapp/gateway-server-go/internal/model"
)

type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

type userRepo struct {
	db database.DBTX
}

func NewUserRepository(db database.DBTX) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = $1`, id)
	return HandleNotFound(&user, err)
}
