package middleware_test

import (
	"github.com/stevekinney/silvan-sub003/pkg/adapters/memory"
)

func NewMockStore() *memory.Store {
	return memory.NewStore()
}
