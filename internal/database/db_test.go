package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSQLiteDSN(t *testing.T) {
	t.Parallel()

	all := "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain path", in: "queue.db", want: "queue.db?" + all},
		{name: "memory", in: ":memory:", want: ":memory:"},
		{name: "existing query", in: "file:data/queue.db?mode=rwc", want: "file:data/queue.db?mode=rwc&" + all},
		{
			name: "caller pragma wins",
			in:   "queue.db?_pragma=journal_mode(DELETE)",
			want: "queue.db?_pragma=journal_mode(DELETE)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, sqliteDSN(tt.in))
		})
	}
}
