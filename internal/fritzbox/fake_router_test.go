package fritzbox

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/icholy/digest"

	"github.com/nerrad567/fritz-presence/internal/infrastructure/config"
)

const (
	testUser  = "presence"
	testPass  = "router-secret"
	testRealm = "F!Box SOAP-Auth"
	testNonce = "4F1E2C3B5A697D80"
)

// fakeRouter emulates the TR-064 Hosts service with digest auth.
type fakeRouter struct {
	t *testing.T

	mu         sync.Mutex
	hosts      []Host
	noListPath bool
	woken      []string
	challenges int
	calls      []string
}

func newFakeRouter(t *testing.T, hosts ...Host) (*fakeRouter, *Client) {
	t.Helper()
	fr := &fakeRouter{t: t, hosts: hosts}
	srv := httptest.NewServer(fr)
	t.Cleanup(srv.Close)

	client := New(config.RouterConfig{Host: "fritz.box", TR064Port: 49000, Username: testUser, Password: testPass},
		WithBaseURL(srv.URL))
	t.Cleanup(client.Close)
	return fr, client
}

func (f *fakeRouter) snapshot() (challenges int, calls, woken []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.challenges, append([]string(nil), f.calls...), append([]string(nil), f.woken...)
}

func (f *fakeRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(r) {
		f.mu.Lock()
		f.challenges++
		f.mu.Unlock()
		w.Header().Set("WWW-Authenticate",
			fmt.Sprintf(`Digest realm="%s", nonce="%s", algorithm=MD5, qop="auth"`, testRealm, testNonce))
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/devicehostlist.lua":
		f.serveHostList(w)
	case r.Method == http.MethodPost && r.URL.Path == HostsService.ControlURL:
		f.serveSOAP(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeRouter) authorized(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	if header == "" {
		return false
	}
	cred, err := digest.ParseCredentials(header)
	if err != nil {
		return false
	}
	if cred.Username != testUser || cred.Realm != testRealm || cred.Nonce != testNonce || cred.URI != r.URL.RequestURI() {
		return false
	}
	ha1 := md5hex(testUser + ":" + testRealm + ":" + testPass)
	ha2 := md5hex(r.Method + ":" + cred.URI)
	nc := fmt.Sprintf("%08x", cred.Nc)
	want := md5hex(ha1 + ":" + testNonce + ":" + nc + ":" + cred.Cnonce + ":" + cred.QOP + ":" + ha2)
	return cred.Response == want
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// requestArgs returns the argument elements of the action inside a SOAP
// request body.
func requestArgs(body []byte) (map[string]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	args := make(map[string]string)

	depth := 0
	var name string
	var text strings.Builder
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return args, nil
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			// Envelope, Body, action, argument.
			if depth == 4 {
				name = t.Name.Local
				text.Reset()
			}
		case xml.CharData:
			if depth == 4 {
				text.Write(t)
			}
		case xml.EndElement:
			if depth == 4 {
				args[name] = text.String()
			}
			depth--
		}
	}
}

func (f *fakeRouter) serveSOAP(w http.ResponseWriter, r *http.Request) {
	_, action, _ := strings.Cut(strings.Trim(r.Header.Get("SOAPAction"), `"`), "#")
	body, _ := io.ReadAll(r.Body)
	args, err := requestArgs(body)
	if err != nil {
		f.t.Errorf("fake router: bad envelope: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, action)

	switch action {
	case "X_AVM-DE_GetHostListPath":
		if f.noListPath {
			writeFault(w, 401, "Invalid Action")
			return
		}
		writeResponse(w, action, map[string]string{"NewX_AVM-DE_HostListPath": "/devicehostlist.lua?sid=abc123"})
	case "GetHostNumberOfEntries":
		writeResponse(w, action, map[string]string{"NewHostNumberOfEntries": fmt.Sprint(len(f.hosts))})
	case "GetGenericHostEntry":
		var i int
		fmt.Sscan(args["NewIndex"], &i)
		if i < 0 || i >= len(f.hosts) {
			writeFault(w, 713, "SpecifiedArrayIndexInvalid")
			return
		}
		writeResponse(w, action, hostArgs(f.hosts[i], true))
	case "GetSpecificHostEntry":
		for _, h := range f.hosts {
			if h.MAC == args["NewMACAddress"] {
				writeResponse(w, action, hostArgs(h, false))
				return
			}
		}
		writeFault(w, 714, "NoSuchEntryInArray")
	case "X_AVM-DE_WakeOnLANByMACAddress":
		f.woken = append(f.woken, args["NewMACAddress"])
		writeResponse(w, action, nil)
	default:
		writeFault(w, 401, "Invalid Action")
	}
}

func (f *fakeRouter) serveHostList(w http.ResponseWriter) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?><List>`)
	for i, h := range f.hosts {
		active := "0"
		if h.Active {
			active = "1"
		}
		fmt.Fprintf(&b, `<Item><Index>%d</Index><IPAddress>%s</IPAddress><MACAddress>%s</MACAddress><Active>%s</Active>`+
			`<HostName>%s</HostName><InterfaceType>%s</InterfaceType><X_AVM-DE_Port>0</X_AVM-DE_Port><X_AVM-DE_Speed>%d</X_AVM-DE_Speed></Item>`,
			i+1, h.IP, h.MAC, active, h.HostName, h.InterfaceType, h.Speed)
	}
	b.WriteString(`</List>`)
	w.Header().Set("Content-Type", "text/xml")
	io.WriteString(w, b.String())
}

func hostArgs(h Host, withMAC bool) map[string]string {
	active := "0"
	if h.Active {
		active = "1"
	}
	args := map[string]string{
		"NewIPAddress":          h.IP,
		"NewAddressSource":      "DHCP",
		"NewLeaseTimeRemaining": "0",
		"NewInterfaceType":      h.InterfaceType,
		"NewActive":             active,
		"NewHostName":           h.HostName,
	}
	if withMAC {
		args["NewMACAddress"] = h.MAC
	}
	return args
}

func writeResponse(w http.ResponseWriter, action string, args map[string]string) {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/"><s:Body>`)
	fmt.Fprintf(&b, `<u:%sResponse xmlns:u="%s">`, action, HostsService.Type)
	for k, v := range args {
		fmt.Fprintf(&b, "<%s>%s</%s>", k, v, k)
	}
	fmt.Fprintf(&b, `</u:%sResponse></s:Body></s:Envelope>`, action)
	w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
	io.WriteString(w, b.String())
}

func writeFault(w http.ResponseWriter, code int, desc string) {
	w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
	w.WriteHeader(http.StatusInternalServerError)
	fmt.Fprintf(w, `<?xml version="1.0"?><s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body><s:Fault>`+
		`<faultcode>s:Client</faultcode><faultstring>UPnPError</faultstring><detail>`+
		`<UPnPError xmlns="urn:dslforum-org:control-1-0"><errorCode>%d</errorCode><errorDescription>%s</errorDescription></UPnPError>`+
		`</detail></s:Fault></s:Body></s:Envelope>`, code, desc)
}
