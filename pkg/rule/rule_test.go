package rule

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeywordResponderMatchesGreeting(t *testing.T) {
	r := New()
	require.Equal(t, "您好，欢迎咨询，请问有什么可以帮您？", r.Respond("你好"))
}

func TestKeywordResponderMatchesWithdrawal(t *testing.T) {
	r := New()
	require.NotEmpty(t, r.Respond("我已申请提现但尚未到账"))
}

func TestKeywordResponderNoMatchReturnsEmpty(t *testing.T) {
	r := New()
	require.Equal(t, "", r.Respond("今天天气怎么样"))
}
