package modules

import (
	"github.com/talkbase/talkbase/modules/knowledge"
	"github.com/talkbase/talkbase/modules/messaging"
	"github.com/talkbase/talkbase/pkg/application"
	"github.com/talkbase/talkbase/pkg/background"
)

// BuiltIn returns the modules in registration order. Knowledge comes
// first: messaging resolves its retrieval service during registration.
func BuiltIn(queue *background.Queue) []application.Module {
	return []application.Module{
		knowledge.NewModule(queue),
		messaging.NewModule(queue),
	}
}

func Load(app application.Application, mods ...application.Module) error {
	for _, module := range mods {
		if err := module.Register(app); err != nil {
			return err
		}
	}
	return nil
}
