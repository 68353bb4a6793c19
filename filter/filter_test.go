package filter

import (
	"testing"

	"github.com/antonmedv/expr"
	"github.com/stretchr/testify/assert"
)

func testEnv() Env {
	return Env{
		Room: Room{
			Id:   "lobby",
			Name: "lobby",
			Owner: User{
				Id:   "owner@example.com",
				Nick: "boss",
				Role: "owner",
			},
		},
		Source: Source{
			User: User{
				Id:   "alice@example.com",
				Nick: "alice",
				Role: "moderator",
				Tags: map[string]string{"score": "42", "groups": "staff,helpers"},
			},
			Origin: "user",
		},
		Target: Target{
			User: User{
				Id:   "bob@example.com",
				Nick: "bob",
				Role: "user",
			},
			Client: Client{ClientLanguage: "en"},
		},
		Created:       1700000000,
		Name:          "chat",
		Tags:          map[string]string{"message": "hello"},
		AsInt:         AsInt,
		AsFloat:       AsFloat,
		AsStringSlice: AsStringSlice,
		AsIntSlice:    AsIntSlice,
		AsFloatSlice:  AsFloatSlice,
	}
}

func TestTargetFilter(t *testing.T) {
	env := testEnv()

	res, err := expr.Eval(`Target.User.Id == "bob@example.com"`, env)
	if err != nil {
		t.Fatalf("error: %s", err)
	}
	assert.Equal(t, true, res.(bool))

	res, err = expr.Eval(`Target.User.Id == "carol@example.com"`, env)
	if err != nil {
		t.Fatalf("error: %s", err)
	}
	assert.Equal(t, false, res.(bool))

	res, err = expr.Eval(`Source.User.Role == "moderator" && Room.Owner.Nick == "boss"`, env)
	if err != nil {
		t.Fatalf("error: %s", err)
	}
	assert.Equal(t, true, res.(bool))
}

func TestTagConversions(t *testing.T) {
	env := testEnv()

	res, err := expr.Eval(`AsInt(Source.User.Tags["score"]) == 42`, env)
	if err != nil {
		t.Fatalf("error: %s", err)
	}
	assert.Equal(t, true, res.(bool))

	res, err = expr.Eval(`"helpers" in AsStringSlice(Source.User.Tags["groups"])`, env)
	if err != nil {
		t.Fatalf("error: %s", err)
	}
	assert.Equal(t, true, res.(bool))
}

func TestConvertHelpers(t *testing.T) {
	assert.Equal(t, int64(17), AsInt("17"))
	assert.Equal(t, int64(0), AsInt("not a number"))
	assert.Equal(t, 0.5, AsFloat("0.5"))
	assert.Equal(t, []int64{1, 0, 3}, AsIntSlice("1,x,3"))
	assert.Equal(t, []string{"a", "b"}, AsStringSlice("a,b"))
	assert.Equal(t, []float64{1.5, 0}, AsFloatSlice("1.5,?"))
}
