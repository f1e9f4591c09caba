package stratum

import "testing"

func TestSniffServerCall(t *testing.T) {
	cases := []struct {
		line   string
		method string
		ok     bool
	}{
		{`{"id":null,"method":"mining.notify","params":[]}`, "mining.notify", true},
		{`{"method":"mining.set_difficulty","params":[2]}`, "mining.set_difficulty", true},
		{`{ "id" : null , "method" : "client.reconnect" , "params" : [] }`, "client.reconnect", true},
		{`{"id":1,"error":null,"result":true}`, "", false},
		{`{"id":7,"result":[[],"n",4],"error":null}`, "", false},
	}
	for _, tc := range cases {
		method, ok := sniffServerCall([]byte(tc.line))
		if ok != tc.ok || method != tc.method {
			t.Fatalf("sniffServerCall(%s) = (%q, %v), want (%q, %v)", tc.line, method, ok, tc.method, tc.ok)
		}
	}
}

func TestSniffResponseID(t *testing.T) {
	cases := []struct {
		line string
		id   uint64
		ok   bool
	}{
		{`{"id":1,"error":null,"result":true}`, 1, true},
		{`{"id": 42 ,"result":null,"error":null}`, 42, true},
		{`{"id":null,"method":"mining.notify","params":[]}`, 0, false},
		{`{"id":"str","result":true}`, 0, false},
		{`{"id":-3,"result":true}`, 0, false},
		{`{"result":true}`, 0, false},
	}
	for _, tc := range cases {
		id, ok := sniffResponseID([]byte(tc.line))
		if ok != tc.ok || id != tc.id {
			t.Fatalf("sniffResponseID(%s) = (%d, %v), want (%d, %v)", tc.line, id, ok, tc.id, tc.ok)
		}
	}
}
