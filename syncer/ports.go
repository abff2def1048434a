package syncer

import (
	"context"

	"tasksync/domain"
	"tasksync/storage"
)

// RemoteStore is the remote task store client bound to one scope.
type RemoteStore interface {
	Scope() domain.Scope
	Create(ctx context.Context, in domain.TaskInput) (string, error)
	List(ctx context.Context) ([]domain.Task, error)
	Update(ctx context.Context, id string, patch domain.TaskPatch) error
	Delete(ctx context.Context, id string) error
	Subscribe(ctx context.Context) *storage.Subscription
	Healthy() bool
}

// RemoteFactory binds a remote client to a scope.
type RemoteFactory interface {
	ForScope(scope domain.Scope) RemoteStore
}

// RemoteFactoryFunc adapts a function to RemoteFactory.
type RemoteFactoryFunc func(scope domain.Scope) RemoteStore

func (f RemoteFactoryFunc) ForScope(scope domain.Scope) RemoteStore { return f(scope) }

// BackendFactory serves remote clients from a storage backend.
func BackendFactory(b *storage.Backend) RemoteFactory {
	return RemoteFactoryFunc(func(scope domain.Scope) RemoteStore { return b.ForScope(scope) })
}

// ScopeResolver yields the identity token the session is scoped to.
type ScopeResolver interface {
	ResolveScope(ctx context.Context) (string, error)
}

// Cache is the best-effort local snapshot store.
type Cache interface {
	Save(ctx context.Context, tasks []domain.Task)
	Load(ctx context.Context) []domain.Task
}

// NotificationCanceler drops notifications scheduled for a task.
type NotificationCanceler interface {
	CancelNotification(ctx context.Context, taskID, notificationID string) error
}
