package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"ingest", "resolve", "forms", "crawl", "serve", "export", "import", "migrate"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "project-registry", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.True(t, rootCmd.SilenceUsage)
}

func TestIngestCommand_Flags(t *testing.T) {
	flag := ingestCmd.Flags().Lookup("url")
	require.NotNil(t, flag, "ingest command should have --url flag")

	src := ingestCmd.Flags().Lookup("source")
	require.NotNil(t, src)
	assert.Equal(t, "command line", src.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestCrawlCommand_Flags(t *testing.T) {
	for _, name := range []string{"pages", "resolve", "detail"} {
		assert.NotNil(t, crawlCmd.Flags().Lookup(name), "crawl should have --%s flag", name)
	}
}

func TestFormsCommand_HasSubmit(t *testing.T) {
	var found bool
	for _, c := range formsCmd.Commands() {
		if c.Name() == "submit" {
			found = true
		}
	}
	assert.True(t, found)
	assert.NotNil(t, formsSubmitCmd.Flags().Lookup("url"))
}

func TestExportCommand_Flags(t *testing.T) {
	flag := exportCmd.Flags().Lookup("out")
	require.NotNil(t, flag)
	assert.Equal(t, "registry.xlsx", flag.DefValue)
}

func TestImportAndResolve_FileFlags(t *testing.T) {
	assert.NotNil(t, importCmd.Flags().Lookup("file"))
	assert.NotNil(t, resolveCmd.Flags().Lookup("file"))
	assert.NotNil(t, resolveCmd.Flags().Lookup("source"))
}
