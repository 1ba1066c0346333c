package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeToUser(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		filter  Filter
		wantErr error
		wantLen int
	}{
		{name: "empty filter", userID: "u1", wantLen: 1},
		{name: "extra conditions", userID: "u1", filter: NewFilter(Match("status", "in-progress")), wantLen: 2},
		{name: "missing user", filter: Filter{}, wantErr: ErrMissingUser},
		{name: "partition key override", userID: "u1", filter: NewFilter(Match(UserIDKey, "u2")), wantErr: ErrPartitionKeyInFilter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ScopeToUser(tt.userID, tt.filter)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, got.Must, tt.wantLen)
			assert.Equal(t, Match(UserIDKey, tt.userID), got.Must[0])
		})
	}
}

func TestScopeToUser_InvalidCondition(t *testing.T) {
	_, err := ScopeToUser("u1", NewFilter(Condition{Key: "type"}))
	assert.Error(t, err)
	_, err = ScopeToUser("u1", NewFilter(Condition{Values: []string{"x"}}))
	assert.Error(t, err)
}

func TestFilter_Matches(t *testing.T) {
	payload := map[string]any{
		UserIDKey: "u1",
		"type":    "project",
		"score":   float64(3),
		"active":  true,
		"data":    map[string]any{"role": "user"},
	}

	assert.True(t, NewFilter().Matches(payload))
	assert.True(t, NewFilter(Match(UserIDKey, "u1"), Match("type", "project")).Matches(payload))
	assert.True(t, NewFilter(MatchAny("type", "skill", "project")).Matches(payload))
	assert.True(t, NewFilter(Match("score", "3"), Match("active", "true")).Matches(payload))
	assert.True(t, NewFilter(Match("data.role", "user")).Matches(payload))
	assert.False(t, NewFilter(Match(UserIDKey, "u2")).Matches(payload))
	assert.False(t, NewFilter(Match("missing", "x")).Matches(payload))
	assert.False(t, NewFilter(Match("data.role.deep", "x")).Matches(payload))
}

func TestFilter_AndDoesNotAlias(t *testing.T) {
	base := Filter{Must: make([]Condition, 1, 4)}
	base.Must[0] = Match("a", "1")
	x := base.And(Match("b", "2"))
	y := base.And(Match("c", "3"))
	assert.Equal(t, "b", x.Must[1].Key)
	assert.Equal(t, "c", y.Must[1].Key)
}

func TestValidateCollectionName(t *testing.T) {
	assert.NoError(t, ValidateCollectionName("user_progress"))
	assert.ErrorIs(t, ValidateCollectionName(""), ErrInvalidCollectionName)
	assert.ErrorIs(t, ValidateCollectionName("Chat-Data"), ErrInvalidCollectionName)
}
