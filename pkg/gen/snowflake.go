package gen

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("snowflake",
	fx.Provide(NewNode),
)

// NewNode builds the process-wide snowflake node used for row identifiers.
func NewNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
