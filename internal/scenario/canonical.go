package scenario

import (
	"strings"

	"github.com/signalsfoundry/item-routing-simulator/model"
)

// CanonicalNotes is the four-agent example scenario.
const CanonicalNotes = `Monkey 0:
  Starting items: 79, 98
  Operation: new = old * 19
  Test: divisible by 23
    If true: throw to monkey 2
    If false: throw to monkey 3

Monkey 1:
  Starting items: 54, 65, 75, 74
  Operation: new = old + 6
  Test: divisible by 19
    If true: throw to monkey 2
    If false: throw to monkey 0

Monkey 2:
  Starting items: 79, 60, 97
  Operation: new = old * old
  Test: divisible by 13
    If true: throw to monkey 1
    If false: throw to monkey 3

Monkey 3:
  Starting items: 74
  Operation: new = old + 3
  Test: divisible by 17
    If true: throw to monkey 0
    If false: throw to monkey 1
`

// Canonical returns a fresh copy of the four-agent example scenario.
func Canonical() []model.AgentSpec {
	specs, err := ParseNotes(strings.NewReader(CanonicalNotes))
	if err != nil {
		panic("scenario: canonical notes do not parse: " + err.Error())
	}
	return specs
}
