package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswerSetValid(t *testing.T) {
	var nilSet *AnswerSet
	assert.False(t, nilSet.Valid())
	assert.False(t, (&AnswerSet{}).Valid())
	assert.False(t, (&AnswerSet{
		Answers: []Answer{{Address: "1.2.3.4"}},
		RCode:   3, // NXDOMAIN
	}).Valid())
	assert.False(t, (&AnswerSet{
		Answers:   []Answer{{Address: "1.2.3.4"}},
		Addresses: []Answer{},
	}).Valid())

	assert.True(t, (&AnswerSet{
		Answers: []Answer{{Address: "1.2.3.4"}},
	}).Valid())
	assert.True(t, (&AnswerSet{
		Answers:   []Answer{{Address: "backend.internal", Port: 8080}},
		Addresses: []Answer{{Address: "1.2.3.4"}},
	}).Valid())
}

func TestConvertAnswers(t *testing.T) {
	set := &AnswerSet{
		Answers: []Answer{
			{Address: "1.2.3.4", TTL: 300, Port: 8080},
			{Address: "", TTL: 300, Port: 8080}, // dropped silently
			{Address: "5.6.7.8", TTL: 60},
		},
	}

	list := convertAnswers(set, "svc", 0)
	require.Len(t, list.Servers, 2)
	assert.Equal(t, Server{Address: "1.2.3.4", TTL: 300, Port: 8080}, list.Servers[0])
	assert.Equal(t, Server{Address: "5.6.7.8", TTL: 60, Port: 0}, list.Servers[1])
	assert.Equal(t, "svc", list.QName)
	assert.Same(t, set, list.Answers)

	// The override port beats per-answer ports.
	list = convertAnswers(set, "svc", 9000)
	require.Len(t, list.Servers, 2)
	assert.Equal(t, 9000, list.Servers[0].Port)
	assert.Equal(t, 9000, list.Servers[1].Port)
}

func TestConvertAnswersNil(t *testing.T) {
	list := convertAnswers(nil, "svc", 80)
	assert.Empty(t, list.Servers)
	assert.Equal(t, "svc", list.QName)
}

func TestAnswersFromPeers(t *testing.T) {
	set := answersFromPeers([]string{
		"10.0.0.1:8080",
		"[2001:db8::1]:8443",
		"missing-port",
		"10.0.0.2:nan",
	})

	require.Len(t, set.Answers, 2)
	assert.Equal(t, Answer{Address: "10.0.0.1", TTL: TTLNeverExpire, Port: 8080}, set.Answers[0])
	assert.Equal(t, Answer{Address: "2001:db8::1", TTL: TTLNeverExpire, Port: 8443}, set.Answers[1])
}

func TestServerString(t *testing.T) {
	assert.Equal(t, "1.2.3.4:80", Server{Address: "1.2.3.4", Port: 80}.String())
	assert.Equal(t, "[2001:db8::1]:80", Server{Address: "2001:db8::1", Port: 80}.String())
}
