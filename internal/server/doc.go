// Copyright (c) StepFlow Authors.
// Licensed under the MIT License.

/*
包 server 管理 StepFlow HTTP 服务器的生命周期。

Manager 封装 net/http.Server：Start 非阻塞监听，配置了 TLS 证书与
私钥时以 HTTPS 启动并套用 tlsutil 的安全默认值；Shutdown 在超时内
优雅关闭；Serve 期间的异步错误经 Errors 通道上报。信号处理由
cmd/stepflow 通过 signal.NotifyContext 与 errgroup 统一负责。

ListenAddr 返回实际监听地址，便于以 ":0" 启动的测试取得端口。
*/
package server
