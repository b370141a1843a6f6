package infra

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitSQLDropsComments(t *testing.T) {
	in := `-- header; with a semicolon
CREATE TABLE a (id INT);

-- trailing
CREATE INDEX b ON a (id);
`
	got := splitSQL(stripSQLComments(in))
	assert.Equal(t, []string{"CREATE TABLE a (id INT)", "CREATE INDEX b ON a (id)"}, got)
}
