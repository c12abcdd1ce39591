// Package middleware содержит HTTP middleware сервиса доставки.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const actorKey contextKey = "actorRef"

// ActorHeader — заголовок с идентификатором участника, выполняющего запрос.
// Ядро не читает сессионное состояние: личность участника передаётся явно
// в каждом запросе и далее явным параметром в каждый вызов сервиса.
const ActorHeader = "X-Actor-ID"

// RequireActor проверяет наличие корректного идентификатора участника
// в заголовке запроса и добавляет его в контекст.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(ActorHeader)
		if raw == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		actor, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetActorFromContext возвращает идентификатор участника из контекста запроса.
func GetActorFromContext(ctx context.Context) (uuid.UUID, bool) {
	actor, ok := ctx.Value(actorKey).(uuid.UUID)
	return actor, ok
}
