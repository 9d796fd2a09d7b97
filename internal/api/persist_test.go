package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/senses3/coolercontrol/internal/control"
	"github.com/senses3/coolercontrol/internal/modes"
	"github.com/senses3/coolercontrol/internal/profiles"
)

// TestPutProfileRejectsMixMembershipCycleAndRollsBack exercises the
// persist-level cross-reference check that a single Profile's own
// Validate() cannot see: two Mix profiles naming each other as a
// member. postProfile's own Validate() call happily accepts each half
// of the cycle in isolation; only persist's full-document config.Validate
// catches the cycle once both halves exist.
func TestPutProfileRejectsMixMembershipCycleAndRollsBack(t *testing.T) {
	// GIVEN: two Mix profiles, "a" with member "p1" and "b" with member
	// "a".
	s := newTestSettingsServer(t)
	s.deps.ProfilesEng.Put(profiles.Profile{UID: "a", Type: profiles.TypeMix, MixFunctionType: profiles.MixMax, MemberProfileUIDs: []string{"p1"}})
	s.deps.ProfilesEng.Put(profiles.Profile{UID: "b", Type: profiles.TypeMix, MixFunctionType: profiles.MixMax, MemberProfileUIDs: []string{"a"}})

	e := echo.New()
	body := `{"uid":"a","type":"mix","mix_function_type":"max","member_profile_uids":["b"]}`
	req := httptest.NewRequest(http.MethodPut, "/profiles/a/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames(urlParamUID)
	c.SetParamValues("a")

	// WHEN: "a" is rewritten to point back at "b", closing a cycle a->b->a
	require.NoError(t, s.putProfile(c))

	// THEN: rejected, and the on-disk document was never touched
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "cyclic")

	// AND: the in-memory engine still holds the pre-mutation profile, not
	// the rejected one
	current, ok := s.deps.ProfilesEng.Get("a")
	require.True(t, ok)
	assert.Equal(t, []string{"p1"}, current.MemberProfileUIDs)
}

// TestPostProfileRejectsUnknownFunctionUIDAndDoesNotLeaveItLive covers
// the other persist-level check a single Profile's Validate() can't
// see on its own: a function_uid that simply doesn't exist.
func TestPostProfileRejectsUnknownFunctionUIDAndDoesNotLeaveItLive(t *testing.T) {
	// GIVEN
	s := newTestSettingsServer(t)
	e := echo.New()
	body := `{"uid":"new-graph","type":"graph","function_uid":"ghost","speed_profile":[{"temp_c":30,"duty":20},{"temp_c":70,"duty":100}]}`
	req := httptest.NewRequest(http.MethodPost, "/profiles/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	// WHEN
	require.NoError(t, s.postProfile(c))

	// THEN
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	_, ok := s.deps.ProfilesEng.Get("new-graph")
	assert.False(t, ok, "rejected profile must not remain live in the engine")
}

// TestDeleteProfileRejectsWhenStillReferencedByAModeAndRestoresIt
// covers a deletion-side cross-reference: a Mode entry pointing at the
// profile being deleted.
func TestDeleteProfileRejectsWhenStillReferencedByAModeAndRestoresIt(t *testing.T) {
	// GIVEN: profile "p1" referenced by a mode entry
	s := newTestSettingsServer(t)
	s.deps.ModesCtrl.Put(modes.Mode{
		UID:  "m1",
		Name: "m1",
		Entries: []modes.Entry{
			{ChannelRef: modes.ChannelRef{DeviceUID: "d1", Channel: "fan1"}, Setting: control.ProfileSetting("p1")},
		},
	})

	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/profiles/p1/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames(urlParamUID)
	c.SetParamValues("p1")

	// WHEN
	require.NoError(t, s.deleteProfile(c))

	// THEN: rejected, and the profile is still present
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	_, ok := s.deps.ProfilesEng.Get("p1")
	assert.True(t, ok, "profile must be restored after a rejected delete")
}
