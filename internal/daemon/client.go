package daemon

import (
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/patrickjm/patsearch/internal/record"
	"github.com/patrickjm/patsearch/internal/source"
)

// Client speaks the line-delimited JSON protocol over a unix socket. A
// Client is not safe for concurrent calls; open one per goroutine.
type Client struct {
	conn net.Conn
	enc  *json.Encoder
	dec  *json.Decoder
}

var reqCounter uint64

func NewClient(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, enc: json.NewEncoder(conn), dec: json.NewDecoder(conn)}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) Call(method string, params any, out any) error {
	id := strconv.FormatUint(atomic.AddUint64(&reqCounter, 1), 10)
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return err
		}
		raw = b
	}
	if err := c.enc.Encode(Request{ID: id, Method: method, Params: raw}); err != nil {
		return err
	}
	var resp Response
	if err := c.dec.Decode(&resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return errors.New(resp.Error.Message)
	}
	if out != nil {
		return json.Unmarshal(resp.Result, out)
	}
	return nil
}

func (c *Client) Search(sourceName, query string, maxPages int) (record.ResultSet, error) {
	var result record.ResultSet
	return result, c.Call(MethodSearch, SearchParams{Source: sourceName, Query: query, MaxPages: maxPages}, &result)
}

func (c *Client) Sources() ([]source.Descriptor, error) {
	var result []source.Descriptor
	return result, c.Call(MethodSources, nil, &result)
}

func (c *Client) Status() (StatusResult, error) {
	var result StatusResult
	return result, c.Call(MethodStatus, nil, &result)
}

func (c *Client) Stop() error {
	return c.Call(MethodStop, nil, nil)
}
