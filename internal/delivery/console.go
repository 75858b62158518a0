/*
Oxmail Groupware Server - Exchange-compatible groupware and mail suite.
Copyright © 2021-2024 The Oxmail Authors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package delivery

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/oxmail/oxmail/framework/config"
)

// Console command surface of the delivery hook. Responses keep the
// 250/5xx prefix discipline operator tooling depends on. The
// "alarm-frequncy" spelling is historical and load-bearing for the same
// reason.

func (d *LocalDelivery) helpText(self string) string {
	return fmt.Sprintf("250 exmdb local help information:\r\n"+
		"\t%s status\r\n"+
		"\t    --print the running information\r\n"+
		"\t%s info\r\n"+
		"\t    --print the module information\r\n"+
		"\t%s bounce reload\r\n"+
		"\t    --reload the bounce resource list\r\n"+
		"\t%s blacklist reload\r\n"+
		"\t    --reload the recipient blacklist\r\n"+
		"\t%s set alarm-frequncy <times/interval>\r\n"+
		"\t    --set alarm frequency\r\n"+
		"\t%s set alarm-interval <interval>\r\n"+
		"\t    --set alarm interval\r\n"+
		"\t%s set cache-scan <interval>\r\n"+
		"\t    --set cache scanning interval\r\n"+
		"\t%s set retrying-times <times>\r\n"+
		"\t    --set the cache retrying times\r\n"+
		"\t%s set response-interval <interval>\r\n"+
		"\t    --set auto response interval\r\n"+
		"\t%s echo <mailbox_dir>\r\n"+
		"\t    --echo exmdb connection information",
		self, self, self, self, self, self, self, self, self, self)
}

// persist writes a console-adjusted setting into the runtime state file.
func (d *LocalDelivery) persist(pairs ...string) error {
	if d.state == nil {
		return nil
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		d.state.Set(pairs[i], pairs[i+1])
	}
	return d.state.Save()
}

// ConsoleTalk handles one console command addressed to this module.
// argv[0] is the module name the operator used.
func (d *LocalDelivery) ConsoleTalk(argv []string) string {
	if len(argv) < 2 {
		return "550 too few arguments"
	}

	switch {
	case len(argv) == 2 && argv[1] == "--help":
		return d.helpText(argv[0])

	case len(argv) == 2 && argv[1] == "status":
		return fmt.Sprintf("250 mailbox local running information:\r\n"+
			"\tOK                       %d\r\n"+
			"\ttemporary fail           %d\r\n"+
			"\tpermanent fail           %d\r\n"+
			"\tno user                  %d",
			d.stats.OK(), d.stats.Temp(), d.stats.Permanent(), d.stats.NoUser())

	case len(argv) == 2 && argv[1] == "info":
		return fmt.Sprintf("250 mailbox local module information:\r\n"+
			"\tstatistic times          %d\r\n"+
			"\tstatistic interval       %s\r\n"+
			"\talarm interval           %s\r\n"+
			"\tcache interval           %s\r\n"+
			"\tretrying times           %d\r\n"+
			"\tresponse capacity        %d\r\n"+
			"\tresponse interval        %s",
			d.stats.AlarmTimes(),
			config.FormatInterval(d.stats.StatInterval()),
			config.FormatInterval(d.stats.AlarmInterval()),
			config.FormatInterval(d.cache.ScanInterval()),
			d.cache.RetryingTimes(),
			d.audit.Capacity(),
			config.FormatInterval(d.responder.Interval()))

	case len(argv) == 3 && argv[1] == "bounce" && argv[2] == "reload":
		if err := d.producer.Refresh(); err != nil {
			return "550 bounce resource list reload error"
		}
		return "250 bounce resource list reload OK"

	case len(argv) == 3 && argv[1] == "blacklist" && argv[2] == "reload":
		if d.blacklist == nil {
			return "550 no blacklist configured"
		}
		if err := d.blacklist.Reload(); err != nil {
			return "550 blacklist reload error"
		}
		return "250 blacklist reload OK"

	case len(argv) == 4 && argv[1] == "set" && argv[2] == "alarm-frequncy":
		slash := strings.IndexByte(argv[3], '/')
		if slash < 0 {
			return fmt.Sprintf("550 invalid argument %s should be times/interval", argv[3])
		}
		times, err := strconv.Atoi(argv[3][:slash])
		if err != nil || times <= 0 {
			return "550 times and interval should be larger than 0"
		}
		interval, err := config.ParseInterval(argv[3][slash+1:])
		if err != nil || interval <= 0 {
			return "550 times and interval should be larger than 0"
		}
		if err := d.persist("FAILURE_TIMES_FOR_ALARM", argv[3][:slash],
			"INTERVAL_FOR_FAILURE_STATISTIC", argv[3][slash+1:]); err != nil {
			return "550 failed to save config file"
		}
		d.stats.SetAlarmFrequency(times, interval)
		return "250 frequency set OK"

	case len(argv) == 4 && argv[1] == "set" && argv[2] == "alarm-interval":
		interval, err := config.ParseInterval(argv[3])
		if err != nil || interval <= 0 {
			return fmt.Sprintf("550 invalid alarm-interval %s", argv[3])
		}
		if err := d.persist("ALARM_INTERVAL", argv[3]); err != nil {
			return "550 failed to save config file"
		}
		d.stats.SetAlarmInterval(interval)
		return "250 alarm-interval set OK"

	case len(argv) == 4 && argv[1] == "set" && argv[2] == "cache-scan":
		interval, err := config.ParseInterval(argv[3])
		if err != nil || interval <= 0 {
			return fmt.Sprintf("550 invalid cache-scan %s", argv[3])
		}
		if err := d.persist("CACHE_SCAN_INTERVAL", argv[3]); err != nil {
			return "550 failed to save config file"
		}
		d.cache.SetScanInterval(interval)
		return "250 cache-scan set OK"

	case len(argv) == 4 && argv[1] == "set" && argv[2] == "retrying-times":
		times, err := strconv.Atoi(argv[3])
		if err != nil || times <= 0 {
			return fmt.Sprintf("550 invalid retrying-times %s", argv[3])
		}
		if err := d.persist("RETRYING_TIMES", argv[3]); err != nil {
			return "550 failed to save config file"
		}
		d.cache.SetRetryingTimes(times)
		return "250 retrying-times set OK"

	case len(argv) == 4 && argv[1] == "set" && argv[2] == "response-interval":
		interval, err := config.ParseInterval(argv[3])
		if err != nil || interval <= 0 {
			return fmt.Sprintf("550 invalid response-interval %s", argv[3])
		}
		if err := d.persist("RESPONSE_INTERVAL", argv[3]); err != nil {
			return "550 failed to save config file"
		}
		d.responder.SetInterval(interval)
		return "250 response-interval set OK"

	case len(argv) == 3 && argv[1] == "echo":
		info, ok := d.store.PoolInfo(argv[2])
		if !ok {
			return fmt.Sprintf("250 no information about exmdb(dir:%s)", argv[2])
		}
		return fmt.Sprintf("250 connection information of exmdb(dir:%s ip:%s port:%d):\r\n"+
			"\ttotal connections       %d\r\n"+
			"\tavailable connections   %d",
			argv[2], info.Addr, info.Port, info.Total, info.Alive)
	}

	return fmt.Sprintf("550 invalid argument %s", argv[1])
}
