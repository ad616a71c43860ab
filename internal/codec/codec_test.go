package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/puzzler-io/puzzler/internal/domain"
)

func sudokuProblem() domain.Problem {
	grid := make([][]int, domain.GridSize)
	for i := range grid {
		grid[i] = make([]int, domain.GridSize)
	}
	grid[0][0] = 5
	return domain.Problem{
		ID:        "a3f2c1",
		Type:      domain.TypeIP,
		Name:      domain.NameSudoku,
		Data:      map[string]any{"grid": grid},
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Status:    domain.StatusCreated,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := sudokuProblem()
	b, err := Encode(p)
	require.NoError(t, err)

	got, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, p.ID, got.ID)
	require.Equal(t, p.Type, got.Type)
	require.Equal(t, p.Name, got.Name)
	require.Equal(t, p.Status, got.Status)
	require.True(t, p.CreatedAt.Equal(got.CreatedAt))

	grid, err := domain.GridFromData(got.Data)
	require.NoError(t, err)
	require.Equal(t, 5, grid[0][0])
}

func TestDecodeUnknownKind(t *testing.T) {
	b, err := msgpack.Marshal(map[string]any{
		"kind":       "tetromino",
		"problem_id": "x",
	})
	require.NoError(t, err)
	_, err = Decode(b)
	require.ErrorIs(t, err, domain.ErrCodec)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte{0xc1, 0x00, 0xff})
	require.ErrorIs(t, err, domain.ErrCodec)
}

func TestDecodeSudokuMissingGrid(t *testing.T) {
	p := sudokuProblem()
	p.Data = map[string]any{}
	b, err := Encode(p)
	require.NoError(t, err)
	_, err = Decode(b)
	require.ErrorIs(t, err, domain.ErrCodec)
}

func TestDecodeEmptyID(t *testing.T) {
	p := sudokuProblem()
	p.ID = ""
	b, err := Encode(p)
	require.NoError(t, err)
	_, err = Decode(b)
	require.ErrorIs(t, err, domain.ErrCodec)
}

func TestGenericKindTravels(t *testing.T) {
	p := domain.Problem{
		ID:        "k1",
		Type:      domain.TypeIP,
		Name:      domain.NameKnapsack,
		Data:      map[string]any{"weights": []any{1, 2, 3}},
		CreatedAt: time.Now().UTC(),
		Status:    domain.StatusInQueue,
	}
	b, err := Encode(p)
	require.NoError(t, err)
	got, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, domain.NameKnapsack, got.Name)
}
