// Package design はタイムラインのデザインドキュメントの正規化と検証を提供します。
package design

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ItemType はトラックアイテムの種別を表します。
type ItemType string

const (
	ItemTypeText  ItemType = "text"
	ItemTypeImage ItemType = "image"
	ItemTypeVideo ItemType = "video"
	ItemTypeAudio ItemType = "audio"
)

const (
	// DefaultFPS は fps 未指定時のフレームレートです。
	DefaultFPS = 30
	// MinDurationMS は導出される duration の下限（ミリ秒）です。
	MinDurationMS = 1000
)

// Size は出力動画の縦横サイズを表します。
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Window は表示区間・トリム区間（ミリ秒）を表します。
type Window struct {
	From float64 `json:"from"`
	To   float64 `json:"to"`
}

// TrackItem はタイムライン上の1アイテムを表します。
// Details はアイテム種別ごとの自由形式ペイロードで、正規化では解釈しません。
type TrackItem struct {
	ID           string          `json:"id"`
	Type         ItemType        `json:"type"`
	Display      Window          `json:"display"`
	Trim         *Window         `json:"trim,omitempty"`
	PlaybackRate float64         `json:"playbackRate,omitempty"`
	Details      json.RawMessage `json:"details,omitempty"`
}

// Design はレンダーワーカーへの入力契約となるタイムラインドキュメントです。
// ワーカーに渡した後は読み取り専用として扱います。
type Design struct {
	ID            string               `json:"id,omitempty"`
	Size          *Size                `json:"size"`
	FPS           float64              `json:"fps,omitempty"`
	Duration      float64              `json:"duration,omitempty"`
	Background    string               `json:"background,omitempty"`
	TrackItems    []TrackItem          `json:"trackItems"`
	TrackItemsMap map[string]TrackItem `json:"trackItemsMap,omitempty"`
	Tracks        json.RawMessage      `json:"tracks,omitempty"`
	Transitions   json.RawMessage      `json:"transitions,omitempty"`
}

// Normalize はデザインを自己完結したドキュメントに整えます。
// trackItems のマップ表現は順序付き配列へ変換し、fps と duration に既定値を与えます。
func (d *Design) Normalize() {
	if len(d.TrackItems) == 0 && len(d.TrackItemsMap) > 0 {
		keys := make([]string, 0, len(d.TrackItemsMap))
		for k := range d.TrackItemsMap {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]TrackItem, 0, len(keys))
		for _, k := range keys {
			item := d.TrackItemsMap[k]
			if item.ID == "" {
				item.ID = k
			}
			items = append(items, item)
		}
		d.TrackItems = items
	}
	d.TrackItemsMap = nil

	if d.FPS <= 0 {
		d.FPS = DefaultFPS
	}

	if d.Duration <= 0 {
		var max float64
		for _, item := range d.TrackItems {
			if item.Display.To > max {
				max = item.Display.To
			}
		}
		if max < MinDurationMS {
			max = MinDurationMS
		}
		d.Duration = max
	}
}

// Validate はワーカープロセス起動前の検証ゲートです。
// size と trackItems の欠落はここで弾き、プロセスは起動させません。
func (d *Design) Validate() error {
	if d == nil {
		return newError("INVALID_DESIGN", "デザインが指定されていません。", nil)
	}
	if d.Size == nil {
		return newError("INVALID_DESIGN", "デザインに size が含まれていません。", nil)
	}
	if d.Size.Width <= 0 || d.Size.Height <= 0 {
		return newError("INVALID_DESIGN", fmt.Sprintf("size の値が不正です (width=%d, height=%d)。", d.Size.Width, d.Size.Height), nil)
	}
	if len(d.TrackItems) == 0 {
		return newError("INVALID_DESIGN", "デザインに trackItems が含まれていません。", nil)
	}
	for i, item := range d.TrackItems {
		switch item.Type {
		case ItemTypeText, ItemTypeImage, ItemTypeVideo, ItemTypeAudio:
		default:
			return newError("INVALID_DESIGN", fmt.Sprintf("trackItems[%d] の type が不正です (received: %s)。", i, item.Type), nil)
		}
		if item.Display.To <= item.Display.From {
			return newError("INVALID_DESIGN", fmt.Sprintf("trackItems[%d] の display 区間が不正です (from=%v, to=%v)。", i, item.Display.From, item.Display.To), nil)
		}
	}
	return nil
}
