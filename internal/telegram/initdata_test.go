package telegram

import (
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "123456:TEST-TOKEN"

func signedInitData(t *testing.T, authDate time.Time) string {
	t.Helper()
	values := url.Values{}
	values.Set("query_id", "AAH")
	values.Set("user", `{"id":4242,"first_name":"Ada","username":"ada"}`)
	values.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	return SignInitData(values, testToken)
}

func TestParseInitData(t *testing.T) {
	data, err := ParseInitData("user=%7B%22id%22%3A7%2C%22username%22%3A%22bob%22%7D&auth_date=1700000000")
	require.NoError(t, err)
	require.NotNil(t, data.User)
	assert.Equal(t, int64(7), data.UserID())
	assert.Equal(t, "bob", data.User.Username)
	assert.Equal(t, int64(1700000000), data.AuthDate.Unix())
}

func TestParseInitDataWithoutUser(t *testing.T) {
	data, err := ParseInitData("auth_date=1700000000")
	require.NoError(t, err)
	assert.Equal(t, int64(0), data.UserID())

	var nilData *InitData
	assert.Equal(t, int64(0), nilData.UserID())
}

func TestParseInitDataRejectsBadUser(t *testing.T) {
	_, err := ParseInitData("user=%7Bnot-json")
	assert.Error(t, err)
}

func TestValidateInitData(t *testing.T) {
	now := time.Now()
	raw := signedInitData(t, now.Add(-time.Minute))

	data, err := ValidateInitData(raw, testToken, time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, int64(4242), data.UserID())
	assert.Equal(t, "AAH", data.QueryID)
}

func TestValidateInitDataWrongToken(t *testing.T) {
	now := time.Now()
	raw := signedInitData(t, now)

	_, err := ValidateInitData(raw, "other-token", time.Hour, now)
	assert.ErrorIs(t, err, ErrInitDataBadHash)
}

func TestValidateInitDataTampered(t *testing.T) {
	now := time.Now()
	values, err := url.ParseQuery(signedInitData(t, now))
	require.NoError(t, err)
	values.Set("user", `{"id":1,"first_name":"Mallory"}`)

	_, err = ValidateInitData(values.Encode(), testToken, time.Hour, now)
	assert.ErrorIs(t, err, ErrInitDataBadHash)
}

func TestValidateInitDataExpired(t *testing.T) {
	now := time.Now()
	raw := signedInitData(t, now.Add(-48*time.Hour))

	_, err := ValidateInitData(raw, testToken, 24*time.Hour, now)
	assert.ErrorIs(t, err, ErrInitDataExpired)

	_, err = ValidateInitData(raw, testToken, 0, now)
	assert.NoError(t, err)
}

func TestValidateInitDataMissingHash(t *testing.T) {
	_, err := ValidateInitData("auth_date=1", testToken, 0, time.Now())
	assert.ErrorIs(t, err, ErrInitDataMissingHash)
}
