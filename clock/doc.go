/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/*
Package clock wraps the clock_adjtime, clock_gettime and clock_settime
syscalls for the system realtime clock and PHC devices.

Frequencies are exchanged in PPB and converted to the timex scaled PPM
representation here. Steps use ADJ_SETOFFSET with nanosecond resolution.
The kernel TAI offset and leap second flags are only meaningful for
CLOCK_REALTIME.
*/
package clock
