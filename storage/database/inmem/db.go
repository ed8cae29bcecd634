package inmemdb

import (
	"sort"
	"sync"
	"time"

	"github.com/arjuunns/Smart-hostel/core"
	"github.com/arjuunns/Smart-hostel/core/attendance"
	"github.com/arjuunns/Smart-hostel/core/calendar"
	"github.com/arjuunns/Smart-hostel/core/leave"
	"github.com/arjuunns/Smart-hostel/core/risk"
	"github.com/arjuunns/Smart-hostel/core/user"
)

type (
	// DB is an in-memory stand-in for the postgres database, used by tests and the "inmem" engine.
	DB struct {
		user       *userTable
		attendance *attendanceTable
		calendar   *calendarTable
		leave      *leaveTable
		stats      *statsTable
	}

	userTable struct {
		table map[string]*user.User
		mutex sync.RWMutex
	}

	attendanceTable struct {
		table map[string]*attendance.Record // {studentID/date: record}
		mutex sync.RWMutex
	}

	calendarTable struct {
		table map[string]*calendar.Event
		mutex sync.RWMutex
	}

	leaveTable struct {
		table     map[string]*leave.Request
		gatePass  map[string]*leave.GatePass // {gatePassID: pass}
		leavePass map[string]string          // {leaveID: gatePassID}
		mutex     sync.RWMutex
	}

	statsTable struct {
		table map[string]*risk.StudentStatistics // {studentID: stats}
		mutex sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		user:       &userTable{table: make(map[string]*user.User)},
		attendance: &attendanceTable{table: make(map[string]*attendance.Record)},
		calendar:   &calendarTable{table: make(map[string]*calendar.Event)},
		leave: &leaveTable{
			table:     make(map[string]*leave.Request),
			gatePass:  make(map[string]*leave.GatePass),
			leavePass: make(map[string]string),
		},
		stats: &statsTable{table: make(map[string]*risk.StudentStatistics)},
	}
}

// lessFunc compares items i and j on a single field; it returns -1, 0 or 1.
type lessFunc func(i, j int) int

// sortRows sorts n rows by the allowed orderings, falling back on dflt when none applies.
func sortRows(n int, swap func(i, j int), ordering []core.DBOrdering, fields map[string]lessFunc, dflt []core.DBOrdering) {
	allowed := make([]core.DBOrdering, 0, len(ordering))
	for _, ord := range ordering {
		if _, ok := fields[ord.Field]; ok {
			allowed = append(allowed, ord)
		}
	}
	if len(allowed) == 0 {
		allowed = dflt
	}
	sort.Stable(rows{n: n, swap: swap, less: func(i, j int) bool {
		for _, ord := range allowed {
			c := fields[ord.Field](i, j)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	}})
}

type rows struct {
	n    int
	swap func(i, j int)
	less func(i, j int) bool
}

func (r rows) Len() int           { return r.n }
func (r rows) Swap(i, j int)      { r.swap(i, j) }
func (r rows) Less(i, j int) bool { return r.less(i, j) }

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}
