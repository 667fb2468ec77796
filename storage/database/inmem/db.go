package inmemdb

import (
	"sync"

	"github.com/trezcool/masomo-academy/core/course"
	"github.com/trezcool/masomo-academy/core/ledger"
	"github.com/trezcool/masomo-academy/core/roster"
	"github.com/trezcool/masomo-academy/core/user"
)

type (
	// DB keeps every table in memory. It backs the tests and the "inmem" database engine.
	DB struct {
		user   *userTable
		item   *itemTable
		ledger *ledgerTable
		roster *rosterTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	itemTable struct {
		sync.RWMutex
		table map[string]*course.Item
	}

	ledgerTable struct {
		sync.RWMutex
		table  map[string]*ledger.Entry
		events map[string]ledger.ProcessedEvent
	}

	rosterKey struct {
		courseID, learnerID string
	}

	rosterTable struct {
		sync.RWMutex
		table map[rosterKey]roster.Entry
		order []rosterKey // insertion order
	}
)

func Open() *DB {
	return &DB{
		user:   &userTable{table: make(map[string]*user.User)},
		item:   &itemTable{table: make(map[string]*course.Item)},
		ledger: &ledgerTable{table: make(map[string]*ledger.Entry), events: make(map[string]ledger.ProcessedEvent)},
		roster: &rosterTable{table: make(map[rosterKey]roster.Entry)},
	}
}
