package utils

import (
	"context"

	"github.com/mmdatafocus/manufacturing_backend/appctx"
)

type contextKey = appctx.ContextKey

var (
	ContextKeyToken         = appctx.ContextKeyToken
	ContextKeyCompanyId     = appctx.ContextKeyCompanyId
	ContextKeyUserId        = appctx.ContextKeyUserId
	ContextKeyUserName      = appctx.ContextKeyUserName
	ContextKeyRole          = appctx.ContextKeyRole
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
)

// company id injected by the session middleware from token claims; inputs may still carry their own
func GetCompanyIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyCompanyId)
}

func GetUserIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyUserId)
}

func GetUserNameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUserName)
}

func GetRoleFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyRole)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetTokenInContext(ctx context.Context, token string) context.Context {
	return appctx.Set(ctx, ContextKeyToken, token)
}

func SetCompanyIdInContext(ctx context.Context, companyId int) context.Context {
	return appctx.Set(ctx, ContextKeyCompanyId, companyId)
}

func SetUserIdInContext(ctx context.Context, userId int) context.Context {
	return appctx.Set(ctx, ContextKeyUserId, userId)
}

func SetUserNameInContext(ctx context.Context, userName string) context.Context {
	return appctx.Set(ctx, ContextKeyUserName, userName)
}

func SetRoleInContext(ctx context.Context, role string) context.Context {
	return appctx.Set(ctx, ContextKeyRole, role)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}
