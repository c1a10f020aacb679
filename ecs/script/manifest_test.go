package script_test

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plus3/loom/ecs"
	"github.com/plus3/loom/ecs/script"
)

func TestParseManifest(t *testing.T) {
	t.Run("full manifest", func(t *testing.T) {
		m, err := script.ParseManifest(`
component Mana
component Poison
resource Weather

system regen in pre_update exclusive {
	write Mana
	read Position, Name
	optional Name
	with Alive
	without Poison
	resource read Weather
	resource write Clock
	where "Mana < 100"
}

system report in PostUpdate {
	read Mana
}
`)
		require.NoError(t, err)
		assert.Equal(t, []string{"Mana", "Poison"}, m.Components)
		assert.Equal(t, []string{"Weather"}, m.Resources)
		require.Len(t, m.Systems, 2)

		regen := m.Systems[0]
		assert.Equal(t, "regen", regen.Name)
		assert.Equal(t, ecs.PreUpdate, regen.Stage)
		assert.True(t, regen.Exclusive)
		assert.Equal(t, []string{"Mana"}, regen.Write)
		assert.Equal(t, []string{"Position", "Name"}, regen.Read)
		assert.Equal(t, []string{"Name"}, regen.Optional)
		assert.Equal(t, []string{"Alive"}, regen.With)
		assert.Equal(t, []string{"Poison"}, regen.Without)
		assert.Equal(t, []string{"Weather"}, regen.ResourceRead)
		assert.Equal(t, []string{"Clock"}, regen.ResourceWrite)
		assert.Equal(t, "Mana < 100", regen.Where)

		report := m.Systems[1]
		assert.Equal(t, ecs.PostUpdate, report.Stage)
		assert.False(t, report.Exclusive)
	})

	t.Run("errors", func(t *testing.T) {
		cases := map[string]string{
			"syntax":          `system broken {`,
			"unknown stage":   `system s in someday { read A }`,
			"duplicate":       "system s in update { read A }\nsystem s in update { read B }",
			"two where":       `system s in update { read A where "A > 1" where "A < 2" }`,
			"read and write":  `system s in update { read A write A }`,
			"unknown keyword": `entity Foo`,
		}
		for name, source := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := script.ParseManifest(source)
				assert.Error(t, err)
			})
		}
	})

	t.Run("overlap is reported as an access error", func(t *testing.T) {
		_, err := script.ParseManifest(`system s in update { read A write A }`)
		assert.True(t, eris.Is(err, ecs.ErrAccessOverlap))
	})
}
