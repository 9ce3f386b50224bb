package svc

import "errors"

// ErrNoAssets 错误：没有可跟踪的资产
var ErrNoAssets = errors.New("no assets to track")

// ErrStorageInitFailed 错误：存储初始化失败
var ErrStorageInitFailed = errors.New("storage initialization failed")
