package profiles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	value float32
	ok    bool
}

func (f fakeResolver) ProcessedTemp(p *Profile) (float32, bool) {
	return f.value, f.ok
}

func TestEvaluateDefaultProfileReturnsNil(t *testing.T) {
	// GIVEN
	e := NewEngine(nil)
	p := NewDefaultProfile()

	// WHEN
	duty, err := e.Evaluate(&p, fakeResolver{})

	// THEN
	require.NoError(t, err)
	assert.Nil(t, duty)
}

func TestEvaluateFixedProfileReturnsItsDuty(t *testing.T) {
	// GIVEN
	e := NewEngine(nil)
	p := Profile{UID: "p1", Type: TypeFixed, SpeedFixed: 65}

	// WHEN
	duty, err := e.Evaluate(&p, fakeResolver{})

	// THEN
	require.NoError(t, err)
	require.NotNil(t, duty)
	assert.Equal(t, 65, *duty)
}

func TestEvaluateGraphProfileReturnsNilWhenTempUnresolved(t *testing.T) {
	// GIVEN
	e := NewEngine(nil)
	p := Profile{UID: "p1", Type: TypeGraph, SpeedProfile: []GraphPoint{{TempC: 30, Duty: 10}, {TempC: 70, Duty: 100}}}

	// WHEN
	duty, err := e.Evaluate(&p, fakeResolver{ok: false})

	// THEN
	require.NoError(t, err)
	assert.Nil(t, duty)
}

func TestEvaluateGraphProfileInterpolatesResolvedTemp(t *testing.T) {
	// GIVEN
	e := NewEngine(nil)
	p := Profile{UID: "p1", Type: TypeGraph, SpeedProfile: []GraphPoint{{TempC: 30, Duty: 20}, {TempC: 70, Duty: 100}}}

	// WHEN
	duty, err := e.Evaluate(&p, fakeResolver{value: 50, ok: true})

	// THEN
	require.NoError(t, err)
	require.NotNil(t, duty)
	assert.Equal(t, 60, *duty)
}

func TestEvaluateMixMaxCombinesMemberOutputs(t *testing.T) {
	// GIVEN
	e := NewEngine([]Profile{
		{UID: "a", Type: TypeFixed, SpeedFixed: 30},
		{UID: "b", Type: TypeFixed, SpeedFixed: 80},
	})
	mix := Profile{UID: "m", Type: TypeMix, MixFunctionType: MixMax, MemberProfileUIDs: []string{"a", "b"}}

	// WHEN
	duty, err := e.Evaluate(&mix, fakeResolver{})

	// THEN
	require.NoError(t, err)
	require.NotNil(t, duty)
	assert.Equal(t, 80, *duty)
}

func TestEvaluateMixMinCombinesMemberOutputs(t *testing.T) {
	// GIVEN
	e := NewEngine([]Profile{
		{UID: "a", Type: TypeFixed, SpeedFixed: 30},
		{UID: "b", Type: TypeFixed, SpeedFixed: 80},
	})
	mix := Profile{UID: "m", Type: TypeMix, MixFunctionType: MixMin, MemberProfileUIDs: []string{"a", "b"}}

	// WHEN
	duty, err := e.Evaluate(&mix, fakeResolver{})

	// THEN
	require.NoError(t, err)
	require.NotNil(t, duty)
	assert.Equal(t, 30, *duty)
}

func TestEvaluateMixAvgCombinesMemberOutputs(t *testing.T) {
	// GIVEN
	e := NewEngine([]Profile{
		{UID: "a", Type: TypeFixed, SpeedFixed: 30},
		{UID: "b", Type: TypeFixed, SpeedFixed: 81},
	})
	mix := Profile{UID: "m", Type: TypeMix, MixFunctionType: MixAvg, MemberProfileUIDs: []string{"a", "b"}}

	// WHEN
	duty, err := e.Evaluate(&mix, fakeResolver{})

	// THEN
	require.NoError(t, err)
	require.NotNil(t, duty)
	assert.Equal(t, 56, *duty) // (30+81)/2 = 55.5, rounds away from zero
}

func TestEvaluateMixDetectsMembershipCycleAtEvaluationTime(t *testing.T) {
	// GIVEN: a engine loaded with a cycle that bypassed config-load validation
	e := NewEngine([]Profile{
		{UID: "a", Type: TypeMix, MixFunctionType: MixAvg, MemberProfileUIDs: []string{"b"}},
		{UID: "b", Type: TypeMix, MixFunctionType: MixAvg, MemberProfileUIDs: []string{"a"}},
	})
	p, ok := e.Lookup("a")
	require.True(t, ok)

	// WHEN
	_, err := e.Evaluate(p, fakeResolver{})

	// THEN
	assert.Error(t, err)
}

func TestEvaluateMixReturnsNilWhenAllMembersResolveToNil(t *testing.T) {
	// GIVEN: both members are Default profiles, which always resolve to nil
	e := NewEngine([]Profile{
		{UID: "a", Type: TypeDefault},
		{UID: "b", Type: TypeDefault},
	})
	mix := Profile{UID: "m", Type: TypeMix, MixFunctionType: MixAvg, MemberProfileUIDs: []string{"a", "b"}}

	// WHEN
	duty, err := e.Evaluate(&mix, fakeResolver{})

	// THEN
	require.NoError(t, err)
	assert.Nil(t, duty)
}

func TestLookupFindsLoadedProfile(t *testing.T) {
	e := NewEngine([]Profile{{UID: "p1", Type: TypeFixed, SpeedFixed: 10}})
	p, ok := e.Lookup("p1")
	require.True(t, ok)
	assert.Equal(t, "p1", p.UID)
}

func TestGetReturnsACopyNotTheStoredProfile(t *testing.T) {
	e := NewEngine([]Profile{{UID: "p1", Name: "Original", Type: TypeFixed, SpeedFixed: 10}})
	p, ok := e.Get("p1")
	require.True(t, ok)
	p.Name = "mutated"
	again, _ := e.Get("p1")
	assert.Equal(t, "Original", again.Name)
}

func TestClampToSpeedOptionsAppliesUpperBoundWhenConfigured(t *testing.T) {
	assert.Equal(t, 80, ClampToSpeedOptions(95, 0, 80))
}

func TestClampToSpeedOptionsIgnoresUpperBoundWhenUnset(t *testing.T) {
	assert.Equal(t, 95, ClampToSpeedOptions(95, 0, 0))
}

func TestClampToSpeedOptionsFloorsAtMinDuty(t *testing.T) {
	assert.Equal(t, 20, ClampToSpeedOptions(5, 20, 0))
}

func TestClampToSpeedOptionsStillClampsToPercentRange(t *testing.T) {
	assert.Equal(t, 100, ClampToSpeedOptions(150, 0, 0))
	assert.Equal(t, 0, ClampToSpeedOptions(-10, 0, 0))
}
