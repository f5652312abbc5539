package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRoot() *cobra.Command {
	root := &cobra.Command{Use: "obsidian", Short: "root"}
	AddHelpJSONFlag(root)
	AnnotateEnv(root, "OBSIDIAN_API_URL", "http://localhost:8080")

	ingest := &cobra.Command{Use: "ingest <file>...", Short: "Ingest files", RunE: func(*cobra.Command, []string) error { return nil }}
	ingest.Flags().String("title", "", "Document title")
	ingest.Flags().String("tenant", "", "Tenant")
	_ = ingest.MarkFlagRequired("tenant")

	initCmd := &cobra.Command{Use: "init [api-url]", Short: "Init", RunE: func(*cobra.Command, []string) error { return nil }}
	hidden := &cobra.Command{Use: "debug", Hidden: true}

	root.AddCommand(ingest, initCmd, hidden)
	return root
}

func TestGenerateSchema(t *testing.T) {
	schema := GenerateSchema(testRoot())

	assert.Equal(t, "obsidian", schema.Name)
	assert.Equal(t, []EnvSchema{{Name: "OBSIDIAN_API_URL", Default: "http://localhost:8080"}}, schema.Env)
	require.Len(t, schema.Subcommands, 2)

	ingest := schema.Subcommands[0]
	assert.Equal(t, "ingest", ingest.Name)
	assert.Equal(t, []ArgSchema{{Name: "file", Required: true, Variadic: true}}, ingest.Args)
	require.Len(t, ingest.Flags, 2)
	byName := map[string]FlagSchema{}
	for _, f := range ingest.Flags {
		byName[f.Name] = f
	}
	assert.True(t, byName["tenant"].Required)
	assert.False(t, byName["title"].Required)
	assert.Equal(t, "string", byName["title"].Type)

	initCmd := schema.Subcommands[1]
	assert.Equal(t, []ArgSchema{{Name: "api-url"}}, initCmd.Args)
	assert.Empty(t, initCmd.Env)
}

func TestHandleHelpJSON(t *testing.T) {
	t.Run("subcommand", func(t *testing.T) {
		var out bytes.Buffer
		handled, err := HandleHelpJSON(testRoot(), []string{"ingest", "--help-json"}, &out)
		require.NoError(t, err)
		assert.True(t, handled)

		var schema CommandSchema
		require.NoError(t, json.Unmarshal(out.Bytes(), &schema))
		assert.Equal(t, "ingest", schema.Name)
		assert.Empty(t, schema.Subcommands)
	})

	t.Run("root", func(t *testing.T) {
		var out bytes.Buffer
		handled, err := HandleHelpJSON(testRoot(), []string{"--help-json"}, &out)
		require.NoError(t, err)
		assert.True(t, handled)
		assert.Contains(t, out.String(), `"OBSIDIAN_API_URL"`)
	})

	t.Run("absent", func(t *testing.T) {
		var out bytes.Buffer
		handled, err := HandleHelpJSON(testRoot(), []string{"ingest", "a.md"}, &out)
		require.NoError(t, err)
		assert.False(t, handled)
		assert.Empty(t, out.String())
	})
}
