// README: Identifier helpers shared by every module.
package types

import "github.com/google/uuid"

type ID string

func (id ID) String() string { return string(id) }

func (id ID) Empty() bool { return id == "" }

func NewID() ID {
	return ID(uuid.NewString())
}
