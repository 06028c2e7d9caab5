package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const locationsCSV = `id,name,postcode,city,latitude,longitude,website,phone
A,Queensgate Shopping Centre,PE1 1NT,Peterborough,52.5743,-0.2441,https://www.queensgate-shopping.co.uk/,01733 311666
B,Queensgate,PE1 1NT,Peterborough,,,,
C,Kingfisher Shopping Centre,B97 4HL,Redditch,52.3069,-1.9408,,
`

const tenantsCSV = `id,location_id,name,category
t1,A,Boots,Health
t2,B,John Lewis,Department Store
`

func writeFixtures(t *testing.T) (dir string) {
	t.Helper()
	dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "locations.csv"), []byte(locationsCSV), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tenants.csv"), []byte(tenantsCSV), 0o600))
	return dir
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

func TestDedupe_ExecuteFromCSV(t *testing.T) {
	dir := writeFixtures(t)
	out := filepath.Join(dir, "report.json")
	mergeLog := filepath.Join(dir, "merge_log.txt")

	err := execute(t,
		"--config", dir,
		"--input", filepath.Join(dir, "locations.csv"),
		"--tenants", filepath.Join(dir, "tenants.csv"),
		"--execute",
		"--format", "json",
		"--out", out,
		"--merge-log", mergeLog,
	)
	require.NoError(t, err)

	rep, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(rep), `"mode": "execute"`)
	assert.Contains(t, string(rep), `"merged": true`)

	lines, err := os.ReadFile(mergeLog)
	require.NoError(t, err)
	assert.Contains(t, string(lines), "MERGE: Queensgate (B) -> Queensgate Shopping Centre (A)")
	assert.NotContains(t, string(lines), "FAILED")
}

func TestDedupe_DryRunLeavesMergeLogEmpty(t *testing.T) {
	dir := writeFixtures(t)
	out := filepath.Join(dir, "report.md")
	mergeLog := filepath.Join(dir, "merge_log.txt")

	err := execute(t,
		"--config", dir,
		"--input", filepath.Join(dir, "locations.csv"),
		"--out", out,
		"--merge-log", mergeLog,
	)
	require.NoError(t, err)

	rep, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(rep), "# Deduplication Report")
	assert.Contains(t, string(rep), "Queensgate")

	lines, err := os.ReadFile(mergeLog)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestDedupe_SetupErrors(t *testing.T) {
	dir := writeFixtures(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "unknown format",
			args: []string{"--config", dir, "--input", filepath.Join(dir, "locations.csv"), "--format", "xml"},
			want: "xml",
		},
		{
			name: "missing input file",
			args: []string{"--config", dir, "--input", filepath.Join(dir, "nope.csv")},
			want: "nope.csv",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
