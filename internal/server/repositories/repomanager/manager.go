package repomanager

import (
	"context"
	"database/sql"

	"github.com/dinicsek/LovassyApp/internal/dbx"
	"github.com/dinicsek/LovassyApp/internal/server/repositories/accesstokens"
	"github.com/dinicsek/LovassyApp/internal/server/repositories/grades"
	"github.com/dinicsek/LovassyApp/internal/server/repositories/importpayloads"
	"github.com/dinicsek/LovassyApp/internal/server/repositories/refreshtokens"
	"github.com/dinicsek/LovassyApp/internal/server/repositories/users"
)

// RepositoryManager hands out repositories bound to either the pool or a
// transaction, so services can run several of them inside dbx.WithTx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	AccessTokens(db dbx.DBTX) accesstokens.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	ImportPayloads(db dbx.DBTX) importpayloads.Repository
	Grades(db dbx.DBTX) grades.Repository
}
