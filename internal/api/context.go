package api

import "context"

type ctxKey int

const authTokenKey ctxKey = iota

func withAuthToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, authTokenKey, token)
}

func authTokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(authTokenKey).(string)
	return token
}
