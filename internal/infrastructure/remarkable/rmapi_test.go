package remarkable

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ReaderSync/internal/domain"
)

type scriptedRunner struct {
	results map[string]Result
	errs    map[string]error
	calls   [][]string
}

func (s *scriptedRunner) Run(_ context.Context, args ...string) (Result, error) {
	s.calls = append(s.calls, args)
	key := strings.Join(args, " ")
	if err := s.errs[key]; err != nil {
		return Result{}, err
	}
	return s.results[key], nil
}

func TestListKeepsOnlyFiles(t *testing.T) {
	t.Parallel()

	r := &scriptedRunner{results: map[string]Result{
		"-ni ls Substack": {Stdout: []byte("[d]\tArchive\n[f]\tPub - A [1]\n[f]\tPub - B [2]\nnoise\n")},
	}}
	names, err := NewDevice(r, nil).List(context.Background(), "Substack")
	require.NoError(t, err)
	assert.Equal(t, []string{"Pub - A [1]", "Pub - B [2]"}, names)
}

func TestListMissingFolder(t *testing.T) {
	t.Parallel()

	r := &scriptedRunner{results: map[string]Result{
		"-ni ls Substack": {ExitCode: 1, Stderr: []byte("Error: directory doesn't exist")},
		"-ni ls Other":    {ExitCode: 1, Stderr: []byte("Error: network")},
	}}
	d := NewDevice(r, nil)

	_, err := d.List(context.Background(), "Substack")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = d.List(context.Background(), "Other")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "exit code 1")
}

func TestStatParsesProgress(t *testing.T) {
	t.Parallel()

	r := &scriptedRunner{results: map[string]Result{
		"-ni stat Substack/A [1]": {Stdout: []byte(`{"CurrentPage": 3, "PageCount": 9, "VissibleName": "A [1]"}`)},
		"-ni stat Substack/B [2]": {Stdout: []byte(`{"CurrentPage": 0}`)},
		"-ni stat Substack/C [3]": {Stdout: []byte(`not json`)},
	}}
	d := NewDevice(r, nil)

	st, err := d.Stat(context.Background(), "Substack/A [1]")
	require.NoError(t, err)
	assert.Equal(t, domain.FileStat{CurrentPage: 3, PageCount: 9}, st)

	st, err = d.Stat(context.Background(), "Substack/B [2]")
	require.NoError(t, err)
	assert.Equal(t, domain.FileStat{}, st)

	_, err = d.Stat(context.Background(), "Substack/C [3]")
	assert.Error(t, err)
}

func TestMutatingCommands(t *testing.T) {
	t.Parallel()

	r := &scriptedRunner{results: map[string]Result{
		"-ni rm Substack/gone": {ExitCode: 2, Stderr: []byte("not found")},
	}}
	d := NewDevice(r, nil)

	require.NoError(t, d.Mkdir(context.Background(), "Substack"))
	require.NoError(t, d.Put(context.Background(), "/tmp/x/A [1].pdf", "Substack"))
	err := d.Remove(context.Background(), "Substack/gone")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	assert.Equal(t, [][]string{
		{"mkdir", "Substack"},
		{"-ni", "put", "/tmp/x/A [1].pdf", "Substack"},
		{"-ni", "rm", "Substack/gone"},
	}, r.calls)
}

func TestCheckBinary(t *testing.T) {
	t.Parallel()

	ok := &scriptedRunner{results: map[string]Result{"version": {Stdout: []byte("rmapi 0.0.25")}}}
	assert.NoError(t, NewDevice(ok, nil).CheckBinary(context.Background()))

	missing := &scriptedRunner{errs: map[string]error{"version": errors.New("executable file not found")}}
	assert.Error(t, NewDevice(missing, nil).CheckBinary(context.Background()))
}
