package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"example.com/BoltServer/global"
)

// RequestOptions 发给运行中服务的一次执行请求
type RequestOptions struct {
	Server    string
	Transport string
	Action    string
	Hosts     string
	User      string
	Password  string
	KeyFile   string
	Port      int
	Command   string
	NoHostKey bool
	Timeout   int
}

func NewCmdRequest() *cobra.Command {
	o := &RequestOptions{}
	cmd := &cobra.Command{
		Use:   "request [flags]",
		Short: "向运行中的服务提交执行请求 (运维调试用)",
		Long: `向运行中的 boltserver 提交执行请求并打印结果。
用法示例:
boltserver request -H host1,host2 -u root --cmd "uptime"
boltserver request -H winhost -T winrm -u admin --action check_node_connections

不带 --password 且没有 --key 时会在终端里安全地询问密码。`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(); err != nil {
				return err
			}
			return o.Run()
		},
	}

	cmd.Flags().StringVarP(&o.Server, "server", "s", "http://127.0.0.1:62658", "服务地址")
	cmd.Flags().StringVarP(&o.Transport, "transport", "T", "ssh", "传输协议 (ssh|winrm)")
	cmd.Flags().StringVarP(&o.Action, "action", "a", "run_command", "动作")
	cmd.Flags().StringVarP(&o.Hosts, "host", "H", "", "目标主机,多个主机用逗号分隔")
	cmd.Flags().StringVarP(&o.User, "user", "u", "", "登录用户名")
	cmd.Flags().StringVarP(&o.Password, "password", "P", "", "登录密码")
	cmd.Flags().StringVarP(&o.KeyFile, "key", "i", "", "私钥文件路径 (内容随请求发送)")
	cmd.Flags().IntVarP(&o.Port, "port", "p", 0, "端口,0 表示用协议默认值")
	cmd.Flags().StringVarP(&o.Command, "cmd", "c", "", "要执行的命令 (run_command)")
	cmd.Flags().BoolVar(&o.NoHostKey, "no-host-key-check", false, "跳过主机指纹校验")
	cmd.Flags().IntVar(&o.Timeout, "timeout", 0, "连接超时秒数")

	cmd.MarkFlagsMutuallyExclusive("password", "key")
	return cmd
}

func (o *RequestOptions) Complete() error {
	if o.Hosts == "" {
		return fmt.Errorf("at least one host is required (-H)")
	}
	if o.Action == "run_command" && o.Command == "" {
		return fmt.Errorf("run_command requires --cmd")
	}
	if o.Password == "" && o.KeyFile == "" {
		if !global.IsTerminal {
			return fmt.Errorf("no credential given and stdin is not a terminal")
		}
		fmt.Printf("Password for %s: ", o.User)
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return err
		}
		o.Password = string(password)
	}
	return nil
}

func (o *RequestOptions) Run() error {
	body, single, err := o.buildBody()
	if err != nil {
		return err
	}

	url := strings.TrimRight(o.Server, "/") + "/" + o.Transport + "/" + o.Action

	// 多目标请求可能要等一阵子，转个圈让人知道还活着
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("executing"),
		progressbar.OptionSpinnerType(14),
	)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-time.After(100 * time.Millisecond):
				bar.Add(1)
			}
		}
	}()

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	close(done)
	bar.Finish()
	fmt.Println()
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		pretty.Write(raw)
	}
	fmt.Println(pretty.String())

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	if !single {
		var rs struct {
			Status string `json:"status"`
		}
		if json.Unmarshal(raw, &rs) == nil && rs.Status == "failure" {
			os.Exit(2)
		}
	}
	return nil
}

func (o *RequestOptions) buildBody() ([]byte, bool, error) {
	target := map[string]any{
		"hostname": "",
		"user":     o.User,
	}
	if o.Port != 0 {
		target["port"] = o.Port
	}
	if o.Timeout != 0 {
		target["connect-timeout"] = o.Timeout
	}
	if o.NoHostKey {
		target["host-key-check"] = false
	}
	if o.KeyFile != "" {
		content, err := os.ReadFile(o.KeyFile)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read key file: %w", err)
		}
		target["private-key-content"] = string(content)
	} else {
		target["password"] = o.Password
	}

	hosts := strings.Split(o.Hosts, ",")
	body := map[string]any{}
	single := len(hosts) == 1
	if single {
		target["hostname"] = strings.TrimSpace(hosts[0])
		body["target"] = target
	} else {
		targets := make([]map[string]any, len(hosts))
		for i, h := range hosts {
			t := make(map[string]any, len(target))
			for k, v := range target {
				t[k] = v
			}
			t["hostname"] = strings.TrimSpace(h)
			targets[i] = t
		}
		body["targets"] = targets
	}
	if o.Command != "" {
		body["command"] = o.Command
	}

	encoded, err := json.Marshal(body)
	return encoded, single, err
}
